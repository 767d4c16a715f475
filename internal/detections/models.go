package detections

import "time"

type Detection struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	GID        string    `gorm:"column:g_id;size:128;not null;uniqueIndex" json:"g_id"`
	RefCount   int64     `gorm:"not null;default:1" json:"ref_count"`
	ObjectType string    `gorm:"size:64;not null;index" json:"object_type"`
	Color      string    `gorm:"size:64;not null" json:"color"`
	Confidence *float32  `json:"confidence"`
	CreatedAt  time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null;index" json:"updated_at"`
}

// DailyStat counts detections per object type per UTC day. Date is stored as
// YYYY-MM-DD so both sqlite and postgres compare it lexically.
type DailyStat struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ObjectType string `gorm:"size:64;not null;uniqueIndex:idx_daily_stats_type_date" json:"object_type"`
	Count      int64  `gorm:"not null;default:0" json:"count"`
	Date       string `gorm:"size:10;not null;uniqueIndex:idx_daily_stats_type_date" json:"date"`
}

type Stats struct {
	Today       map[string]int64 `json:"today"`
	Total       map[string]int64 `json:"total"`
	Recent      []Detection      `json:"recent"`
	DailyTrend  []DailyStat      `json:"daily_trend"`
	LastUpdated time.Time        `json:"last_updated"`
}
