package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// Subscribers receive spot-availability updates for the spots they follow.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Spots []*ParkingSpot `gorm:"many2many:subscription_spot_mapping;"`
}
