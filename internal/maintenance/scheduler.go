package maintenance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

type Sessions interface {
	CompactRevocations(retain int) int
	SweepThrottle() int
}

type DetectionCleaner interface {
	Cleanup(ctx context.Context, daysToKeep int) (int64, error)
}

type Config struct {
	RevocationSpec       string
	RevocationRetain     int
	ThrottleSpec         string
	DetectionsSpec       string
	DetectionsRetainDays int
}

func DefaultConfig() Config {
	return Config{
		RevocationSpec:       "@every 10m",
		RevocationRetain:     1000,
		ThrottleSpec:         "@every 10m",
		DetectionsSpec:       "@daily",
		DetectionsRetainDays: 30,
	}
}

// Scheduler runs the periodic housekeeping jobs. Each job takes the same
// locks as request handling, so it can run alongside live traffic.
type Scheduler struct {
	cron       *cron.Cron
	cfg        Config
	sessions   Sessions
	detections DetectionCleaner
	log        *slog.Logger
}

// New registers the jobs. A nil detections cleaner leaves the retention job
// out.
func New(cfg Config, sessions Sessions, detections DetectionCleaner, l *slog.Logger) (*Scheduler, error) {
	if l == nil {
		l = slog.Default()
	}
	l = l.With("component", "maintenance")
	cl := cronLogger{l: l}

	s := &Scheduler{
		cron:       cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		cfg:        cfg,
		sessions:   sessions,
		detections: detections,
		log:        l,
	}

	if _, err := s.cron.AddFunc(cfg.RevocationSpec, s.CompactRevocations); err != nil {
		return nil, fmt.Errorf("schedule revocation compaction %q: %w", cfg.RevocationSpec, err)
	}
	if _, err := s.cron.AddFunc(cfg.ThrottleSpec, s.SweepThrottle); err != nil {
		return nil, fmt.Errorf("schedule throttle sweep %q: %w", cfg.ThrottleSpec, err)
	}
	if detections != nil {
		if _, err := s.cron.AddFunc(cfg.DetectionsSpec, func() { s.CleanupDetections(context.Background()) }); err != nil {
			return nil, fmt.Errorf("schedule detections cleanup %q: %w", cfg.DetectionsSpec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Jobs() int { return len(s.cron.Entries()) }

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("maintenance_started",
		"revocation_spec", s.cfg.RevocationSpec,
		"throttle_spec", s.cfg.ThrottleSpec,
		"detections_spec", s.cfg.DetectionsSpec,
	)
}

// Stop prevents new runs and waits for running jobs or ctx, whichever ends
// first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("maintenance_stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) CompactRevocations() {
	removed := s.sessions.CompactRevocations(s.cfg.RevocationRetain)
	s.log.Info("revocations_compacted", "removed", removed, "retain", s.cfg.RevocationRetain)
}

func (s *Scheduler) SweepThrottle() {
	removed := s.sessions.SweepThrottle()
	s.log.Debug("throttle_swept", "removed", removed)
}

func (s *Scheduler) CleanupDetections(ctx context.Context) {
	if s.detections == nil {
		return
	}
	removed, err := s.detections.Cleanup(ctx, s.cfg.DetectionsRetainDays)
	if err != nil {
		s.log.Error("detections_cleanup_failed", "error", err)
		return
	}
	s.log.Info("detections_cleaned", "removed", removed, "days_to_keep", s.cfg.DetectionsRetainDays)
}

type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
