package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parkingspots-backend/internal/fault"
	"parkingspots-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	// Catalog (written by the feed loader, read by everything else).
	GetSpot(ctx context.Context, id string) (*model.ParkingSpot, error)
	ActiveSpots(ctx context.Context) ([]model.ParkingSpot, error)
	UpsertSpots(ctx context.Context, spots []model.ParkingSpot) error

	// Session ledger. Both mutations fold the occupancy observation into
	// the same transaction: a check-in that fails leaves neither a session
	// row nor a pattern bump behind.
	CreateSession(ctx context.Context, sess *model.CheckInSession, obsDelta float64) (*model.ParkingSpot, error)
	CompleteSession(ctx context.Context, checkInID, deviceID string, at time.Time, obsDelta float64) (*model.CheckInSession, error)
	ActiveSessionForDevice(ctx context.Context, deviceID string) (*model.CheckInSession, error)
	CountActiveSessions(ctx context.Context, spotID string) (int64, error)
	ActiveSessionCounts(ctx context.Context, spotIDs []string) (map[string]int64, error)

	// Occupancy patterns.
	RecordObservation(ctx context.Context, spotID string, weekday, hour int, delta float64) (*model.OccupancyPattern, error)
	GetPattern(ctx context.Context, spotID string, weekday, hour int) (*model.OccupancyPattern, error)
	HourlyAverages(ctx context.Context, spotID string) (map[int]float64, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB { return s.db }

func (s *gormStore) GetSpot(ctx context.Context, id string) (*model.ParkingSpot, error) {
	var spot model.ParkingSpot
	err := s.db.WithContext(ctx).First(&spot, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fault.NotFoundf("parking spot %s not found", id)
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "fetch spot")
	}
	return &spot, nil
}

func (s *gormStore) ActiveSpots(ctx context.Context) ([]model.ParkingSpot, error) {
	var spots []model.ParkingSpot
	if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&spots).Error; err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "fetch active spots")
	}
	return spots, nil
}

// UpsertSpots is the loader's write path. Existing rows are refreshed in
// place so spot IDs stay stable across feed runs.
func (s *gormStore) UpsertSpots(ctx context.Context, spots []model.ParkingSpot) error {
	if len(spots) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"lat", "lng", "type", "capacity", "active",
			"zone", "price_info", "address", "last_updated", "updated_at",
		}),
	}).Create(&spots).Error
	if err != nil {
		return fault.Wrap(fault.KindInternal, err, "upsert spots")
	}
	return nil
}

// CreateSession inserts a new active session after validating, inside one
// transaction, that the device has no active session, the spot exists, and
// the spot is under capacity. The surrounding ledger service additionally
// serializes callers per spot and per device so concurrent check-ins cannot
// interleave between the count and the insert.
func (s *gormStore) CreateSession(ctx context.Context, sess *model.CheckInSession, obsDelta float64) (*model.ParkingSpot, error) {
	var spot model.ParkingSpot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var deviceActive int64
		if err := tx.Model(&model.CheckInSession{}).
			Where("device_id = ? AND status = ?", sess.DeviceID, model.SessionActive).
			Count(&deviceActive).Error; err != nil {
			return err
		}
		if deviceActive > 0 {
			return fault.Conflictf("device %s already has an active session", sess.DeviceID)
		}

		if err := tx.First(&spot, "id = ?", sess.SpotID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fault.NotFoundf("parking spot %s not found", sess.SpotID)
			}
			return err
		}

		var occupied int64
		if err := tx.Model(&model.CheckInSession{}).
			Where("spot_id = ? AND status = ?", sess.SpotID, model.SessionActive).
			Count(&occupied).Error; err != nil {
			return err
		}
		if occupied >= int64(spot.EffectiveCapacity()) {
			return fault.Conflictf("parking spot %s is at capacity", sess.SpotID)
		}

		if err := tx.Create(sess).Error; err != nil {
			return err
		}

		at := sess.StartedAt
		_, err := applyObservation(tx, sess.SpotID, int(at.Weekday()), at.Hour(), obsDelta)
		return err
	})
	if err != nil {
		var fe *fault.Error
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, fault.Wrap(fault.KindInternal, err, "create session")
	}
	return &spot, nil
}

// CompleteSession transitions one session from active to completed. The
// find-and-update is a single guarded UPDATE so a second check-out of the
// same session sees zero affected rows and reports not found.
func (s *gormStore) CompleteSession(ctx context.Context, checkInID, deviceID string, at time.Time, obsDelta float64) (*model.CheckInSession, error) {
	var sess model.CheckInSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.CheckInSession{}).
			Where("id = ? AND device_id = ? AND status = ?", checkInID, deviceID, model.SessionActive).
			Updates(map[string]any{
				"status":         model.SessionCompleted,
				"checked_out_at": at,
				"updated_at":     at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fault.NotFoundf("no active session %s for device %s", checkInID, deviceID)
		}
		if err := tx.First(&sess, "id = ?", checkInID).Error; err != nil {
			return err
		}
		_, err := applyObservation(tx, sess.SpotID, int(at.Weekday()), at.Hour(), obsDelta)
		return err
	})
	if err != nil {
		var fe *fault.Error
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, fault.Wrap(fault.KindInternal, err, "complete session")
	}
	return &sess, nil
}

func (s *gormStore) ActiveSessionForDevice(ctx context.Context, deviceID string) (*model.CheckInSession, error) {
	var sess model.CheckInSession
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND status = ?", deviceID, model.SessionActive).
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "fetch active session")
	}
	return &sess, nil
}

func (s *gormStore) CountActiveSessions(ctx context.Context, spotID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.CheckInSession{}).
		Where("spot_id = ? AND status = ?", spotID, model.SessionActive).
		Count(&n).Error
	if err != nil {
		return 0, fault.Wrap(fault.KindInternal, err, "count active sessions")
	}
	return n, nil
}

// ActiveSessionCounts aggregates active sessions per spot in one query, for
// the search path which enriches many spots at once.
func (s *gormStore) ActiveSessionCounts(ctx context.Context, spotIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(spotIDs))
	if len(spotIDs) == 0 {
		return counts, nil
	}

	type aggRow struct {
		SpotID string
		N      int64
	}
	var rows []aggRow
	err := s.db.WithContext(ctx).Model(&model.CheckInSession{}).
		Select("spot_id as spot_id, COUNT(*) as n").
		Where("spot_id IN ? AND status = ?", spotIDs, model.SessionActive).
		Group("spot_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "aggregate active sessions")
	}

	for _, r := range rows {
		counts[r.SpotID] = r.N
	}
	return counts, nil
}

// RecordObservation applies one bounded increment to a (spot, weekday, hour)
// bucket. A bucket unseen so far starts from the neutral 0.5 rate. The new
// rate is clamped to [0,1] whatever the event sequence.
func (s *gormStore) RecordObservation(ctx context.Context, spotID string, weekday, hour int, delta float64) (*model.OccupancyPattern, error) {
	var pattern *model.OccupancyPattern
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		pattern, err = applyObservation(tx, spotID, weekday, hour, delta)
		return err
	})
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "record occupancy observation")
	}
	return pattern, nil
}

// applyObservation bumps one bucket inside an open transaction.
func applyObservation(tx *gorm.DB, spotID string, weekday, hour int, delta float64) (*model.OccupancyPattern, error) {
	var pattern model.OccupancyPattern
	err := tx.Where("spot_id = ? AND weekday = ? AND hour = ?", spotID, weekday, hour).
		First(&pattern).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		pattern = model.OccupancyPattern{
			SpotID:  spotID,
			Weekday: weekday,
			Hour:    hour,
			Rate:    0.5,
		}
	} else if err != nil {
		return nil, err
	}

	pattern.Rate = clamp01(pattern.Rate + delta)
	pattern.Samples++
	pattern.UpdatedAt = time.Now().UTC()

	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "spot_id"}, {Name: "weekday"}, {Name: "hour"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate", "samples", "updated_at"}),
	}).Create(&pattern).Error
	if err != nil {
		return nil, err
	}
	return &pattern, nil
}

func (s *gormStore) GetPattern(ctx context.Context, spotID string, weekday, hour int) (*model.OccupancyPattern, error) {
	var pattern model.OccupancyPattern
	err := s.db.WithContext(ctx).
		Where("spot_id = ? AND weekday = ? AND hour = ?", spotID, weekday, hour).
		First(&pattern).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "fetch occupancy pattern")
	}
	return &pattern, nil
}

// HourlyAverages returns the mean historical rate per hour-of-day across all
// weekdays for one spot. Hours with no buckets are absent from the map.
func (s *gormStore) HourlyAverages(ctx context.Context, spotID string) (map[int]float64, error) {
	type aggRow struct {
		Hour    int
		AvgRate float64
	}
	var rows []aggRow
	err := s.db.WithContext(ctx).Model(&model.OccupancyPattern{}).
		Select("hour as hour, AVG(rate) as avg_rate").
		Where("spot_id = ?", spotID).
		Group("hour").
		Scan(&rows).Error
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, err, "aggregate hourly rates")
	}

	averages := make(map[int]float64, len(rows))
	for _, r := range rows {
		averages[r.Hour] = r.AvgRate
	}
	return averages, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
