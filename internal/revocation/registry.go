package revocation

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

// Registry is the denylist of tokens invalidated before their natural
// expiry. Entries are keyed by the token digest and remember the token's own
// expiry, so maintenance can drop entries that no longer matter.
type Registry struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func New() *Registry {
	return &Registry{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func NewWithClock(now func() time.Time) *Registry {
	r := New()
	r.now = now
	return r
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Revoke is idempotent; revoking again keeps the later expiry.
func (r *Registry) Revoke(token string, expiresAt time.Time) {
	key := digest(token)

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.entries[key]; ok && prev.After(expiresAt) {
		return
	}
	r.entries[key] = expiresAt
}

func (r *Registry) IsRevoked(token string) bool {
	key := digest(token)

	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[key]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep drops entries whose token has already expired on its own.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked(r.now())
}

func (r *Registry) sweepLocked(now time.Time) int {
	removed := 0
	for k, exp := range r.entries {
		if !exp.After(now) {
			delete(r.entries, k)
			removed++
		}
	}
	return removed
}

// Compact sweeps expired entries and, if more than retain remain, evicts the
// entries closest to their natural expiry until retain are left.
func (r *Registry) Compact(retain int) int {
	if retain < 0 {
		retain = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := r.sweepLocked(r.now())
	excess := len(r.entries) - retain
	if excess <= 0 {
		return removed
	}

	type entry struct {
		key string
		exp time.Time
	}
	all := make([]entry, 0, len(r.entries))
	for k, exp := range r.entries {
		all = append(all, entry{key: k, exp: exp})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].exp.Before(all[j].exp) })
	for _, e := range all[:excess] {
		delete(r.entries, e.key)
	}
	return removed + excess
}
