package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/detection_backend/pkg/logging"
)

type fakeSessions struct {
	compacted  atomic.Int32
	swept      atomic.Int32
	lastRetain atomic.Int32
}

func (f *fakeSessions) CompactRevocations(retain int) int {
	f.compacted.Add(1)
	f.lastRetain.Store(int32(retain))
	return 0
}

func (f *fakeSessions) SweepThrottle() int {
	f.swept.Add(1)
	return 0
}

type fakeCleaner struct {
	calls atomic.Int32
	days  atomic.Int32
	err   error
}

func (f *fakeCleaner) Cleanup(_ context.Context, days int) (int64, error) {
	f.calls.Add(1)
	f.days.Store(int32(days))
	return 3, f.err
}

func TestNew_RegistersJobs(t *testing.T) {
	t.Parallel()

	s, err := New(DefaultConfig(), &fakeSessions{}, &fakeCleaner{}, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, 3, s.Jobs())

	s, err = New(DefaultConfig(), &fakeSessions{}, nil, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, 2, s.Jobs())
}

func TestNew_BadSpec(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.ThrottleSpec = "every now and then"
	_, err := New(cfg, &fakeSessions{}, nil, logging.Discard())
	assert.Error(t, err)
}

func TestJobs_RunDirectly(t *testing.T) {
	t.Parallel()

	sessions := &fakeSessions{}
	cleaner := &fakeCleaner{}
	cfg := DefaultConfig()
	cfg.RevocationRetain = 42
	cfg.DetectionsRetainDays = 7

	s, err := New(cfg, sessions, cleaner, logging.Discard())
	require.NoError(t, err)

	s.CompactRevocations()
	s.SweepThrottle()
	s.CleanupDetections(context.Background())

	assert.Equal(t, int32(1), sessions.compacted.Load())
	assert.Equal(t, int32(42), sessions.lastRetain.Load())
	assert.Equal(t, int32(1), sessions.swept.Load())
	assert.Equal(t, int32(1), cleaner.calls.Load())
	assert.Equal(t, int32(7), cleaner.days.Load())

	cleaner.err = errors.New("db down")
	s.CleanupDetections(context.Background())
	assert.Equal(t, int32(2), cleaner.calls.Load())
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	t.Parallel()

	sessions := &fakeSessions{}
	cfg := DefaultConfig()
	cfg.RevocationSpec = "@every 1s"
	cfg.ThrottleSpec = "@every 1s"

	s, err := New(cfg, sessions, nil, logging.Discard())
	require.NoError(t, err)
	s.Start()

	assert.Eventually(t, func() bool {
		return sessions.compacted.Load() > 0 && sessions.swept.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
