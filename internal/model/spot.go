package model

import "time"

// SpotType classifies a parking spot.
type SpotType string

const (
	SpotOnStreet    SpotType = "on_street"
	SpotOffStreet   SpotType = "off_street"
	SpotResidential SpotType = "residential"
	SpotSchool      SpotType = "school"
)

// ParkingSpot represents one parking location from the open-data catalog.
// Rows are created and refreshed by the feed loader only; the rest of the
// system reads them.
type ParkingSpot struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Lat         float64   `gorm:"not null;index" json:"lat"`
	Lng         float64   `gorm:"not null;index" json:"lng"`
	Type        SpotType  `gorm:"size:32;not null;index" json:"type"`
	Capacity    int       `gorm:"not null" json:"capacity"`
	Active      bool      `gorm:"not null;index" json:"active"`
	Zone        string    `gorm:"size:64" json:"zone"`
	PriceInfo   string    `gorm:"size:256" json:"priceInfo"`
	Address     string    `gorm:"size:256" json:"address"`
	LastUpdated time.Time `gorm:"not null" json:"lastUpdated"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

// EffectiveCapacity is the capacity used for availability math. Records
// with unknown capacity are treated as a single space.
func (s *ParkingSpot) EffectiveCapacity() int {
	if s.Capacity <= 0 {
		return 1
	}
	return s.Capacity
}

// Free reports whether the spot has no posted price.
func (s *ParkingSpot) Free() bool {
	return s.PriceInfo == "" || s.PriceInfo == "free"
}
