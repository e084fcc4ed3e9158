package ledger

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"parkingspots-backend/internal/cache"
	"parkingspots-backend/internal/fault"
	"parkingspots-backend/internal/model"
	"parkingspots-backend/internal/store"
)

const (
	defaultDuration     = 60 * time.Minute
	defaultQueryTimeout = 5 * time.Second
)

// Notifier receives best-effort spot-availability updates. Dispatch must
// never block or fail the caller.
type Notifier interface {
	Dispatch(spotID string, available int)
}

// CheckInResult is the outcome of a successful check-in.
type CheckInResult struct {
	Session   *model.CheckInSession
	Spot      *model.ParkingSpot
	Available int
}

// CheckOutResult is the outcome of a successful check-out.
type CheckOutResult struct {
	Session  *model.CheckInSession
	Duration time.Duration
}

// Service is the check-in/check-out state machine. Sessions move from
// active to completed and nowhere else; a device holds at most one active
// session and a spot holds at most capacity of them.
type Service struct {
	store        store.Store
	cache        *cache.Cache
	notifier     Notifier
	step         float64
	queryTimeout time.Duration
	locks        *keyMutex
	now          func() time.Time
}

// NewService creates a ledger service. cache and notifier may be nil.
// step is the occupancy-model increment applied per event; queryTimeout
// bounds every store call so a hung backend surfaces as a timeout instead
// of a stuck check-in.
func NewService(s store.Store, c *cache.Cache, n Notifier, step float64, queryTimeout time.Duration) *Service {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &Service{
		store:        s,
		cache:        c,
		notifier:     n,
		step:         step,
		queryTimeout: queryTimeout,
		locks:        newKeyMutex(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CheckIn claims a space at spotID for deviceID. It rejects a device that
// already holds an active session and a spot at capacity, creates the
// session together with the occupancy observation, then invalidates cached
// search results and predictions and fires a best-effort availability
// notification.
func (s *Service) CheckIn(ctx context.Context, deviceID, spotID string, duration time.Duration) (*CheckInResult, error) {
	if deviceID == "" || spotID == "" {
		return nil, fault.InvalidArgumentf("deviceId and spotId are required")
	}
	if duration <= 0 {
		duration = defaultDuration
	}

	// Serialize on both keys: the spot so capacity cannot be
	// oversubscribed, the device so it cannot race itself into two active
	// sessions on different spots.
	unlock := s.locks.lockAll("spot:"+spotID, "device:"+deviceID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	now := s.now()
	sess := &model.CheckInSession{
		ID:           uuid.NewString(),
		SpotID:       spotID,
		DeviceID:     deviceID,
		Status:       model.SessionActive,
		StartedAt:    now,
		ScheduledEnd: now.Add(duration),
	}

	spot, err := s.store.CreateSession(ctx, sess, s.step)
	if err != nil {
		return nil, err
	}

	available := s.afterMutation(ctx, spot)

	return &CheckInResult{Session: sess, Spot: spot, Available: available}, nil
}

// CheckOut completes the session checkInID held by deviceID. A session that
// is missing, owned by another device, or already completed reports not
// found; the guarded update in the store makes a second check-out of the
// same session harmless.
func (s *Service) CheckOut(ctx context.Context, deviceID, checkInID string) (*CheckOutResult, error) {
	if deviceID == "" || checkInID == "" {
		return nil, fault.InvalidArgumentf("deviceId and checkInId are required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	now := s.now()
	sess, err := s.store.CompleteSession(ctx, checkInID, deviceID, now, -s.step)
	if err != nil {
		return nil, err
	}

	spot, err := s.store.GetSpot(ctx, sess.SpotID)
	if err == nil {
		s.afterMutation(ctx, spot)
	} else {
		// The session row is the source of truth; a vanished spot only
		// costs us the notification.
		s.cache.Invalidate("spots:*")
	}

	return &CheckOutResult{Session: sess, Duration: now.Sub(sess.StartedAt)}, nil
}

// ActiveSession returns deviceID's active session, or nil when it has none.
func (s *Service) ActiveSession(ctx context.Context, deviceID string) (*model.CheckInSession, error) {
	if deviceID == "" {
		return nil, fault.InvalidArgumentf("deviceId is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return s.store.ActiveSessionForDevice(ctx, deviceID)
}

// afterMutation keeps the cache coherent with the ledger and tells
// observers. Availability at any spot can affect any cached search that
// included it, so search invalidation is pattern-wide. A failed
// availability count skips the notification rather than broadcasting a
// fabricated full spot; the returned value is then the zero floor.
func (s *Service) afterMutation(ctx context.Context, spot *model.ParkingSpot) int {
	s.cache.Invalidate("spots:*")
	s.cache.Invalidate("prediction:" + spot.ID + ":*")

	active, err := s.store.CountActiveSessions(ctx, spot.ID)
	if err != nil {
		log.Printf("ledger: counting sessions for spot %s: %v", spot.ID, err)
		return 0
	}
	available := spot.EffectiveCapacity() - int(active)
	if available < 0 {
		available = 0
	}
	if s.notifier != nil {
		s.notifier.Dispatch(spot.ID, available)
	}
	return available
}
