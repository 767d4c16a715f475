package detections

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
	RecentCount  = 10
	TrendDays    = 7

	dateLayout = "2006-01-02"
)

var ErrInvalidInput = errors.New("invalid detection input")

type Input struct {
	GID        string   `json:"g_id"`
	ObjectType string   `json:"object_type"`
	Color      string   `json:"color"`
	Confidence *float32 `json:"confidence,omitempty"`
}

func (in Input) Validate() error {
	switch {
	case in.GID == "" || len(in.GID) > 128:
		return fmt.Errorf("%w: g_id must be 1..128 characters", ErrInvalidInput)
	case in.ObjectType == "" || len(in.ObjectType) > 64:
		return fmt.Errorf("%w: object_type must be 1..64 characters", ErrInvalidInput)
	case len(in.Color) > 64:
		return fmt.Errorf("%w: color must be at most 64 characters", ErrInvalidInput)
	case in.Confidence != nil && (*in.Confidence < 0 || *in.Confidence > 1):
		return fmt.Errorf("%w: confidence must be within [0, 1]", ErrInvalidInput)
	}
	return nil
}

// Filter selects detections by creation day. From and To are inclusive days;
// zero values leave that side open.
type Filter struct {
	From       time.Time
	To         time.Time
	ObjectType string
	Limit      int
	Offset     int
}

func (f Filter) normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

type Store struct {
	DB  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db, now: time.Now}
}

func NewStoreWithClock(db *gorm.DB, now func() time.Time) *Store {
	return &Store{DB: db, now: now}
}

func (s *Store) Migrate(ctx context.Context) error {
	if err := s.DB.WithContext(ctx).AutoMigrate(&Detection{}, &DailyStat{}); err != nil {
		return fmt.Errorf("migrate detections: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Upsert records one sighting of in.GID: the first creates the row, later
// ones bump ref_count and overwrite color and confidence. Today's daily stat
// for the object type is incremented in the same transaction.
func (s *Store) Upsert(ctx context.Context, in Input) (*Detection, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var out Detection
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		det := Detection{
			GID:        in.GID,
			RefCount:   1,
			ObjectType: in.ObjectType,
			Color:      in.Color,
			Confidence: in.Confidence,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "g_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"ref_count":  gorm.Expr("detections.ref_count + 1"),
				"color":      in.Color,
				"confidence": in.Confidence,
				"updated_at": now,
			}),
		}).Create(&det).Error; err != nil {
			return fmt.Errorf("upsert detection: %w", err)
		}

		stat := DailyStat{ObjectType: in.ObjectType, Count: 1, Date: now.Format(dateLayout)}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "object_type"}, {Name: "date"}},
			DoUpdates: clause.Assignments(map[string]any{"count": gorm.Expr("daily_stats.count + 1")}),
		}).Create(&stat).Error; err != nil {
			return fmt.Errorf("increment daily stat: %w", err)
		}

		return tx.Where("g_id = ?", in.GID).First(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) List(ctx context.Context, f Filter) ([]Detection, error) {
	f = f.normalized()

	q := s.DB.WithContext(ctx).Model(&Detection{})
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", day(f.From))
	}
	if !f.To.IsZero() {
		q = q.Where("created_at < ?", day(f.To).AddDate(0, 0, 1))
	}
	if f.ObjectType != "" {
		q = q.Where("object_type = ?", f.ObjectType)
	}

	items := make([]Detection, 0, f.Limit)
	if err := q.Order("created_at DESC").Order("id DESC").Limit(f.Limit).Offset(f.Offset).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	return items, nil
}

func (s *Store) History(ctx context.Context, gid string, limit int) ([]Detection, error) {
	f := Filter{Limit: limit}.normalized()

	items := make([]Detection, 0)
	if err := s.DB.WithContext(ctx).
		Where("g_id = ?", gid).
		Order("updated_at DESC").
		Limit(f.Limit).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("detection history: %w", err)
	}
	return items, nil
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	now := s.now().UTC()
	today := now.Format(dateLayout)
	db := s.DB.WithContext(ctx)

	type row struct {
		ObjectType string
		Total      int64
	}

	var todayRows []row
	if err := db.Model(&DailyStat{}).
		Select("object_type, count AS total").
		Where("date = ?", today).
		Scan(&todayRows).Error; err != nil {
		return nil, fmt.Errorf("today stats: %w", err)
	}

	var totalRows []row
	if err := db.Model(&DailyStat{}).
		Select("object_type, SUM(count) AS total").
		Group("object_type").
		Scan(&totalRows).Error; err != nil {
		return nil, fmt.Errorf("total stats: %w", err)
	}

	recent := make([]Detection, 0, RecentCount)
	if err := db.Order("updated_at DESC").Order("id DESC").Limit(RecentCount).Find(&recent).Error; err != nil {
		return nil, fmt.Errorf("recent detections: %w", err)
	}

	trend := make([]DailyStat, 0)
	since := day(now).AddDate(0, 0, -TrendDays).Format(dateLayout)
	if err := db.Where("date >= ?", since).Order("date DESC").Order("object_type").Find(&trend).Error; err != nil {
		return nil, fmt.Errorf("daily trend: %w", err)
	}

	st := &Stats{
		Today:       make(map[string]int64, len(todayRows)),
		Total:       make(map[string]int64, len(totalRows)),
		Recent:      recent,
		DailyTrend:  trend,
		LastUpdated: now,
	}
	for _, r := range todayRows {
		st.Today[r.ObjectType] = r.Total
	}
	for _, r := range totalRows {
		st.Total[r.ObjectType] = r.Total
	}
	return st, nil
}

// Cleanup deletes detections created and daily stats dated before the
// cutoff day, daysToKeep days back from today. It returns the number of rows
// removed across both tables.
func (s *Store) Cleanup(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep < 0 {
		return 0, fmt.Errorf("%w: days to keep must not be negative", ErrInvalidInput)
	}
	cutoff := day(s.now()).AddDate(0, 0, -daysToKeep)

	var removed int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("created_at < ?", cutoff).Delete(&Detection{})
		if res.Error != nil {
			return fmt.Errorf("delete detections: %w", res.Error)
		}
		removed += res.RowsAffected

		res = tx.Where("date < ?", cutoff.Format(dateLayout)).Delete(&DailyStat{})
		if res.Error != nil {
			return fmt.Errorf("delete daily stats: %w", res.Error)
		}
		removed += res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
