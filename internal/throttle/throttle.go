package throttle

import (
	"sync"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 5 * time.Minute
	DefaultLockout     = 5 * time.Minute
)

type Decision int

const (
	Allowed Decision = iota
	Locked
)

func (d Decision) String() string {
	if d == Locked {
		return "locked"
	}
	return "allowed"
}

type Config struct {
	// MaxAttempts is the number of consecutive failures, each within Window
	// of the previous one, that locks a key.
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		Window:      DefaultWindow,
		Lockout:     DefaultLockout,
	}
}

type entry struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

// Throttle counts failed logins per client key. A key is clean (no entry),
// counting, or locked. The count survives as long as each failure follows
// the previous one within Window; lapsed entries are treated as absent and removed on
// the next access or by Sweep.
type Throttle struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*entry
	now     func() time.Time
}

func New(cfg Config) *Throttle {
	return NewWithClock(cfg, time.Now)
}

func NewWithClock(cfg Config, now func() time.Time) *Throttle {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Lockout <= 0 {
		cfg.Lockout = def.Lockout
	}
	return &Throttle{
		cfg:     cfg,
		entries: make(map[string]*entry),
		now:     now,
	}
}

func (t *Throttle) Config() Config { return t.cfg }

func (t *Throttle) lapsed(e *entry, now time.Time) bool {
	if !e.lockedUntil.IsZero() {
		return !now.Before(e.lockedUntil)
	}
	return now.Sub(e.lastFailure) >= t.cfg.Window
}

// live returns the entry for key if it has not lapsed, deleting it otherwise.
func (t *Throttle) live(key string, now time.Time) *entry {
	e, ok := t.entries[key]
	if !ok {
		return nil
	}
	if t.lapsed(e, now) {
		delete(t.entries, key)
		return nil
	}
	return e
}

func (t *Throttle) Check(key string) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.live(key, t.now())
	if e != nil && !e.lockedUntil.IsZero() {
		return Locked
	}
	return Allowed
}

// RecordFailure counts one failure for key and reports whether the key is
// now locked. Failures while already locked do not extend the lockout.
func (t *Throttle) RecordFailure(key string) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	e := t.live(key, now)
	if e == nil {
		e = &entry{}
		t.entries[key] = e
	}
	if !e.lockedUntil.IsZero() {
		return Locked
	}

	e.failures++
	e.lastFailure = now
	if e.failures >= t.cfg.MaxAttempts {
		e.lockedUntil = now.Add(t.cfg.Lockout)
		return Locked
	}
	return Allowed
}

func (t *Throttle) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

func (t *Throttle) Failures(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e := t.live(key, t.now()); e != nil {
		return e.failures
	}
	return 0
}

// Sweep removes every lapsed entry and returns how many were removed.
func (t *Throttle) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for k, e := range t.entries {
		if t.lapsed(e, now) {
			delete(t.entries, k)
			removed++
		}
	}
	return removed
}

func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
