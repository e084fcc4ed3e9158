package model

import "time"

// OccupancyPattern is the smoothed historical occupancy rate for one
// (spot, weekday, hour) bucket. Rate stays within [0,1]; Samples counts the
// check-in/check-out events that contributed to it. Buckets are never
// deleted.
type OccupancyPattern struct {
	SpotID    string    `gorm:"primaryKey;size:64" json:"spotId"`
	Weekday   int       `gorm:"primaryKey" json:"weekday"` // 0 = Sunday
	Hour      int       `gorm:"primaryKey" json:"hour"`    // 0-23
	Rate      float64   `gorm:"not null" json:"rate"`
	Samples   int       `gorm:"not null" json:"samples"`
	UpdatedAt time.Time `json:"updatedAt"`
}
