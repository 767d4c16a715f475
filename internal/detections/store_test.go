package detections

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/detection_backend/pkg/db"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*Store, *clock) {
	t.Helper()

	gdb, err := db.Open(context.Background(), "sqlite::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })

	clk := &clock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	s := NewStoreWithClock(gdb, clk.Now)
	require.NoError(t, s.Migrate(context.Background()))
	return s, clk
}

func conf(v float32) *float32 { return &v }

func TestUpsert_InsertThenBump(t *testing.T) {
	t.Parallel()

	s, clk := newTestStore(t)
	ctx := context.Background()

	d, err := s.Upsert(ctx, Input{GID: "g-1", ObjectType: "car", Color: "red", Confidence: conf(0.8)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.RefCount)
	assert.Equal(t, "red", d.Color)
	require.NotNil(t, d.Confidence)
	assert.InDelta(t, 0.8, *d.Confidence, 1e-6)

	clk.Set(clk.Now().Add(time.Minute))
	d2, err := s.Upsert(ctx, Input{GID: "g-1", ObjectType: "car", Color: "blue"})
	require.NoError(t, err)
	assert.Equal(t, d.ID, d2.ID)
	assert.Equal(t, int64(2), d2.RefCount)
	assert.Equal(t, "blue", d2.Color)
	assert.Nil(t, d2.Confidence)
	assert.True(t, d2.UpdatedAt.After(d2.CreatedAt))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"car": 2}, st.Today)
}

func TestUpsert_Validation(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	bad := []Input{
		{ObjectType: "car"},
		{GID: "g", ObjectType: ""},
		{GID: "g", ObjectType: "car", Confidence: conf(1.5)},
		{GID: "g", ObjectType: "car", Confidence: conf(-0.1)},
	}
	for i, in := range bad {
		_, err := s.Upsert(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidInput, fmt.Sprint(i))
	}
}

func TestList_Filters(t *testing.T) {
	t.Parallel()

	s, clk := newTestStore(t)
	ctx := context.Background()

	base := clk.Now()
	for i := 0; i < 3; i++ {
		clk.Set(base.AddDate(0, 0, -i))
		_, err := s.Upsert(ctx, Input{GID: fmt.Sprintf("car-%d", i), ObjectType: "car", Color: "red"})
		require.NoError(t, err)
		_, err = s.Upsert(ctx, Input{GID: fmt.Sprintf("person-%d", i), ObjectType: "person", Color: "n/a"})
		require.NoError(t, err)
	}

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 6)
	assert.True(t, !all[0].CreatedAt.Before(all[len(all)-1].CreatedAt), "newest first")

	cars, err := s.List(ctx, Filter{ObjectType: "car"})
	require.NoError(t, err)
	assert.Len(t, cars, 3)

	today, err := s.List(ctx, Filter{From: base, To: base})
	require.NoError(t, err)
	assert.Len(t, today, 2)

	older, err := s.List(ctx, Filter{To: base.AddDate(0, 0, -1)})
	require.NoError(t, err)
	assert.Len(t, older, 4)

	page, err := s.List(ctx, Filter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestFilter_Normalized(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultLimit, Filter{}.normalized().Limit)
	assert.Equal(t, MaxLimit, Filter{Limit: 5000}.normalized().Limit)
	assert.Equal(t, 0, Filter{Offset: -3}.normalized().Offset)
}

func TestHistory(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, Input{GID: "g-7", ObjectType: "dog", Color: "brown"})
	require.NoError(t, err)

	got, err := s.History(ctx, "g-7", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "dog", got[0].ObjectType)

	none, err := s.History(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStats(t *testing.T) {
	t.Parallel()

	s, clk := newTestStore(t)
	ctx := context.Background()
	base := clk.Now()

	clk.Set(base.AddDate(0, 0, -1))
	_, err := s.Upsert(ctx, Input{GID: "old", ObjectType: "car", Color: "red"})
	require.NoError(t, err)

	clk.Set(base)
	for i := 0; i < 12; i++ {
		_, err := s.Upsert(ctx, Input{GID: fmt.Sprintf("p-%d", i), ObjectType: "person", Color: "n/a"})
		require.NoError(t, err)
	}

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"person": 12}, st.Today)
	assert.Equal(t, map[string]int64{"person": 12, "car": 1}, st.Total)
	assert.Len(t, st.Recent, RecentCount)
	assert.Len(t, st.DailyTrend, 2)
	assert.Equal(t, base.Format(dateLayout), st.DailyTrend[0].Date)
	assert.Equal(t, base, st.LastUpdated)
}

func TestCleanup(t *testing.T) {
	t.Parallel()

	s, clk := newTestStore(t)
	ctx := context.Background()
	base := clk.Now()

	clk.Set(base.AddDate(0, 0, -40))
	_, err := s.Upsert(ctx, Input{GID: "ancient", ObjectType: "car", Color: "red"})
	require.NoError(t, err)

	clk.Set(base)
	_, err = s.Upsert(ctx, Input{GID: "fresh", ObjectType: "car", Color: "red"})
	require.NoError(t, err)

	removed, err := s.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed, "one detection and one daily stat")

	left, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "fresh", left[0].GID)

	_, err = s.Cleanup(ctx, -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestExportCSV(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, Input{GID: "g,1", ObjectType: "car", Color: "red", Confidence: conf(0.5)})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, Input{GID: "g2", ObjectType: "bike", Color: "green"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.ExportCSV(ctx, &buf, Filter{}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, exportHeader, records[0])

	byGID := map[string][]string{}
	for _, r := range records[1:] {
		byGID[r[1]] = r
	}
	assert.Equal(t, "0.5", byGID["g,1"][4])
	assert.Equal(t, "N/A", byGID["g2"][4])
	assert.Equal(t, "2026-03-10 12:00:00", byGID["g2"][6])
}

func TestUpsert_Concurrent(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Upsert(ctx, Input{GID: "shared", ObjectType: "car", Color: "red"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.History(ctx, "shared", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(10), got[0].RefCount)
}
