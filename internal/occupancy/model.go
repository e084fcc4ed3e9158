package occupancy

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"parkingspots-backend/internal/cache"
	"parkingspots-backend/internal/fault"
	"parkingspots-backend/internal/store"
)

const (
	// neutralRate is assumed for buckets with no observations yet.
	neutralRate = 0.5
	// confidenceFullSamples is how many observations make a bucket fully
	// trusted.
	confidenceFullSamples = 10

	bestTimesCount = 5

	defaultQueryTimeout = 5 * time.Second
)

// Prediction is the occupancy forecast for one spot at one target time.
type Prediction struct {
	SpotID             string    `json:"spotId"`
	CurrentOccupancy   int       `json:"currentOccupancy"`   // percent, live snapshot
	PredictedOccupancy int       `json:"predictedOccupancy"` // percent, historical
	Confidence         int       `json:"confidence"`         // percent
	SampleCount        int       `json:"sampleCount"`
	BusyLevel          string    `json:"busyLevel"`
	Recommendation     string    `json:"recommendation"`
	GeneratedAt        time.Time `json:"generatedAt"`
}

// BestTime is one low-occupancy hour suggestion.
type BestTime struct {
	Hour        int     `json:"hour"`
	Label       string  `json:"label"`
	AverageRate float64 `json:"averageRate"`
}

// Model learns per-hour, per-weekday utilization from check-in events and
// answers prediction queries. The estimator is a bounded increment: each
// event moves the bucket's rate by a fixed step, clamped to [0,1]. It is
// intentionally cheap rather than a true moving average.
type Model struct {
	store        store.Store
	cache        *cache.Cache
	step         float64
	ttl          time.Duration
	queryTimeout time.Duration
}

// NewModel creates an occupancy model. cache may be nil. queryTimeout
// bounds every store call made while answering a query.
func NewModel(s store.Store, c *cache.Cache, step float64, predictionTTL, queryTimeout time.Duration) *Model {
	if step <= 0 {
		step = 0.1
	}
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &Model{store: s, cache: c, step: step, ttl: predictionTTL, queryTimeout: queryTimeout}
}

// Step is the per-event rate increment, scaled by delta's sign in Observe.
func (m *Model) Step() float64 { return m.step }

// Observe records one occupancy change event against the bucket for the
// event time. delta is +1 for a check-in and -1 for a check-out. The ledger
// does not call this: its check-in and check-out fold the same bump into the
// session transaction in the store, so a rejected mutation leaves no sample
// behind. Observe is the standalone path for backfill and out-of-band
// corrections.
func (m *Model) Observe(ctx context.Context, spotID string, delta int, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, m.queryTimeout)
	defer cancel()
	_, err := m.store.RecordObservation(ctx, spotID, int(at.Weekday()), at.Hour(), float64(delta)*m.step)
	return err
}

// Predict combines the historical bucket for at's weekday/hour with a live
// occupancy snapshot. A bucket never observed predicts the neutral rate
// with zero confidence. Predictions are cached per (spot, hour) since they
// change slowly.
func (m *Model) Predict(ctx context.Context, spotID string, at time.Time) (*Prediction, error) {
	key := cache.PredictionKey(spotID, at.Hour())
	if v, ok := m.cache.Get(key); ok {
		if p, ok := v.(*Prediction); ok {
			return p, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, m.queryTimeout)
	defer cancel()

	spot, err := m.store.GetSpot(ctx, spotID)
	if err != nil {
		return nil, err
	}

	rate := neutralRate
	samples := 0
	pattern, err := m.store.GetPattern(ctx, spotID, int(at.Weekday()), at.Hour())
	if err != nil {
		return nil, err
	}
	if pattern != nil {
		rate = pattern.Rate
		samples = pattern.Samples
	}

	active, err := m.store.CountActiveSessions(ctx, spotID)
	if err != nil {
		return nil, err
	}
	capacity := spot.EffectiveCapacity()
	available := capacity - int(active)
	if available < 0 {
		available = 0
	}

	confidence := float64(samples) / confidenceFullSamples
	if confidence > 1 {
		confidence = 1
	}

	p := &Prediction{
		SpotID:             spotID,
		CurrentOccupancy:   percent(float64(active) / float64(capacity)),
		PredictedOccupancy: percent(rate),
		Confidence:         percent(confidence),
		SampleCount:        samples,
		BusyLevel:          busyLevel(rate),
		Recommendation:     recommendation(rate, available),
		GeneratedAt:        time.Now().UTC(),
	}
	m.cache.Set(key, p, m.ttl)
	return p, nil
}

// BestTimes returns the five hours of day with the lowest average
// historical rate across all weekdays.
func (m *Model) BestTimes(ctx context.Context, spotID string) ([]BestTime, error) {
	ctx, cancel := context.WithTimeout(ctx, m.queryTimeout)
	defer cancel()

	if _, err := m.store.GetSpot(ctx, spotID); err != nil {
		return nil, err
	}
	averages, err := m.store.HourlyAverages(ctx, spotID)
	if err != nil {
		return nil, err
	}
	if len(averages) == 0 {
		return nil, fault.NotFoundf("no occupancy history for spot %s", spotID)
	}

	times := make([]BestTime, 0, len(averages))
	for hour, avg := range averages {
		times = append(times, BestTime{Hour: hour, Label: hourLabel(hour), AverageRate: avg})
	}
	sort.Slice(times, func(i, j int) bool {
		if times[i].AverageRate != times[j].AverageRate {
			return times[i].AverageRate < times[j].AverageRate
		}
		return times[i].Hour < times[j].Hour
	})
	if len(times) > bestTimesCount {
		times = times[:bestTimesCount]
	}
	return times, nil
}

func percent(fraction float64) int {
	return int(math.Round(fraction * 100))
}

func busyLevel(rate float64) string {
	switch {
	case rate < 0.4:
		return "quiet"
	case rate < 0.6:
		return "moderate"
	case rate < 0.8:
		return "busy"
	default:
		return "very_busy"
	}
}

func recommendation(rate float64, available int) string {
	if available == 0 {
		return "Spot is full right now, look for alternatives nearby"
	}
	switch {
	case rate < 0.4:
		return "Good time to park, usually plenty of space"
	case rate < 0.7:
		return "Moderate demand expected, arrive a few minutes early"
	default:
		return "High demand expected, consider an alternative time or spot"
	}
}

func hourLabel(hour int) string {
	switch {
	case hour == 0:
		return "12 AM"
	case hour < 12:
		return fmt.Sprintf("%d AM", hour)
	case hour == 12:
		return "12 PM"
	default:
		return fmt.Sprintf("%d PM", hour-12)
	}
}
