package model

import "time"

// SessionStatus is the state of a check-in session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// CheckInSession is one device's claim on a spot from check-in to
// check-out. Rows are append-only: a session is created active and its only
// legal mutation is the transition to completed.
type CheckInSession struct {
	ID           string        `gorm:"primaryKey;size:36" json:"id"`
	SpotID       string        `gorm:"size:64;not null;index" json:"spotId"`
	DeviceID     string        `gorm:"size:128;not null;index" json:"deviceId"`
	Status       SessionStatus `gorm:"size:16;not null;index" json:"status"`
	StartedAt    time.Time     `gorm:"not null" json:"startedAt"`
	ScheduledEnd time.Time     `gorm:"not null" json:"scheduledEnd"`
	CheckedOutAt *time.Time    `json:"checkedOutAt,omitempty"`
	CreatedAt    time.Time     `json:"-"`
	UpdatedAt    time.Time     `json:"-"`
}
