package search

import (
	"context"
	"log"
	"sort"
	"time"

	"parkingspots-backend/config"
	"parkingspots-backend/internal/cache"
	"parkingspots-backend/internal/fault"
	"parkingspots-backend/internal/geo"
	"parkingspots-backend/internal/model"
	"parkingspots-backend/internal/store"
)

// Query is one nearby-spot search.
type Query struct {
	Lat      float64
	Lng      float64
	Radius   float64
	Type     model.SpotType // empty = any
	FreeOnly bool
}

// EnrichedSpot is a catalog record with the derived fields a search adds.
type EnrichedSpot struct {
	model.ParkingSpot
	DistanceMeters float64 `json:"distanceMeters"`
	WalkMinutes    int     `json:"walkMinutes"`
	Available      int     `json:"available"`
}

// Service answers proximity searches over the spot catalog.
type Service struct {
	store store.Store
	cache *cache.Cache
	cfg   config.SearchConfig
	ttl   time.Duration
}

// NewService creates a search service. cache may be nil, which disables
// memoization.
func NewService(s store.Store, c *cache.Cache, cfg config.SearchConfig, cacheTTL time.Duration) *Service {
	return &Service{store: s, cache: c, cfg: cfg, ttl: cacheTTL}
}

// FindNearby returns active spots within q.Radius meters of the origin,
// filtered, enriched with distance, walk time and live availability, sorted
// by distance and capped at the configured maximum. Full spots are included
// with Available == 0. Cache trouble degrades to a direct catalog query and
// never surfaces to the caller.
func (s *Service) FindNearby(ctx context.Context, q Query) ([]EnrichedSpot, error) {
	if !geo.ValidCoordinates(q.Lat, q.Lng) {
		return nil, fault.InvalidArgumentf("coordinates (%.4f, %.4f) out of range", q.Lat, q.Lng)
	}
	if q.Radius <= 0 {
		q.Radius = s.cfg.DefaultRadius
	}
	if q.Radius > s.cfg.MaxRadiusMeters {
		q.Radius = s.cfg.MaxRadiusMeters
	}

	key := cache.SearchKey(q.Lat, q.Lng, q.Radius, string(q.Type), q.FreeOnly)
	if v, ok := s.cache.Get(key); ok {
		if spots, ok := v.([]EnrichedSpot); ok {
			return spots, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.QueryTimeoutSecs)*time.Second)
	defer cancel()

	candidates, err := s.store.ActiveSpots(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]EnrichedSpot, 0, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, spot := range candidates {
		if q.Type != "" && spot.Type != q.Type {
			continue
		}
		if q.FreeOnly && !spot.Free() {
			continue
		}
		d := geo.Distance(q.Lat, q.Lng, spot.Lat, spot.Lng)
		if d > q.Radius {
			continue
		}
		results = append(results, EnrichedSpot{
			ParkingSpot:    spot,
			DistanceMeters: d,
			WalkMinutes:    geo.WalkMinutes(d, s.cfg.WalkPaceMetersMin),
		})
		ids = append(ids, spot.ID)
	}

	occupied, err := s.store.ActiveSessionCounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Available = availability(&results[i].ParkingSpot, occupied[results[i].ID])
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].DistanceMeters < results[j].DistanceMeters
	})
	if len(results) > s.cfg.MaxResults {
		results = results[:s.cfg.MaxResults]
	}

	s.cache.Set(key, results, s.ttl)
	return results, nil
}

// GetSpot returns the full catalog record for one spot with its live
// availability.
func (s *Service) GetSpot(ctx context.Context, id string) (*EnrichedSpot, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.QueryTimeoutSecs)*time.Second)
	defer cancel()

	spot, err := s.store.GetSpot(ctx, id)
	if err != nil {
		return nil, err
	}
	occupied, err := s.store.CountActiveSessions(ctx, id)
	if err != nil {
		log.Printf("search: counting sessions for spot %s: %v", id, err)
		occupied = 0
	}
	return &EnrichedSpot{
		ParkingSpot: *spot,
		Available:   availability(spot, occupied),
	}, nil
}

// availability floors at zero so an overfull ledger can never produce a
// negative count.
func availability(spot *model.ParkingSpot, occupied int64) int {
	available := spot.EffectiveCapacity() - int(occupied)
	if available < 0 {
		return 0
	}
	return available
}
