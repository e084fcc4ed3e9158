package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"parkingspots-backend/config"
	"parkingspots-backend/internal/model"
	"parkingspots-backend/internal/store"
)

// FeedSpot is one record from the open-data parking feed.
type FeedSpot struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Type      string  `json:"type"`
	Capacity  int     `json:"capacity"`
	Status    string  `json:"status"`
	Zone      string  `json:"zone"`
	PriceInfo string  `json:"priceInfo"`
	Address   string  `json:"address"`
}

// feedResponse is the envelope the feed wraps its records in.
type feedResponse struct {
	Total int        `json:"total"`
	Spots []FeedSpot `json:"spots"`
}

// Service periodically refreshes the spot catalog from the open-data feed.
// It is plumbing around the core: the search engine and ledger only ever see
// the catalog through the store.
type Service struct {
	cfg    *config.Config
	store  store.Store
	client *http.Client
}

// NewService creates and initializes a new ingest service.
func NewService(cfg *config.Config, s store.Store) *Service {
	return &Service{
		cfg:   cfg,
		store: s,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Run starts the refresh loop.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Ingest.Enabled {
		log.Println("ingest: disabled, not starting")
		return
	}
	log.Println("ingest: starting catalog refresh loop")

	s.RefreshOnce(ctx)

	timer := time.NewTimer(s.cfg.Ingest.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("ingest: shutting down")
			return
		case <-timer.C:
			s.RefreshOnce(ctx)
			timer.Reset(s.cfg.Ingest.Interval)
		}
	}
}

// RefreshOnce performs a single catalog refresh. A failed or empty fetch
// leaves the existing catalog untouched.
func (s *Service) RefreshOnce(ctx context.Context) {
	log.Println("ingest: executing refresh cycle...")

	feed, err := s.fetch(ctx)
	if err != nil {
		log.Printf("ingest: fetch failed, keeping existing catalog: %v", err)
		return
	}
	if len(feed.Spots) == 0 {
		log.Println("ingest: feed returned no spots, keeping existing catalog")
		return
	}

	now := time.Now().UTC()
	spots := make([]model.ParkingSpot, 0, len(feed.Spots))
	for _, item := range feed.Spots {
		spot, err := mapFeedSpot(item, now)
		if err != nil {
			log.Printf("ingest: skipping feed record %q: %v", item.ID, err)
			continue
		}
		spots = append(spots, spot)
	}

	if err := s.store.UpsertSpots(ctx, spots); err != nil {
		log.Printf("ingest: upsert failed: %v", err)
		return
	}
	log.Printf("ingest: refreshed %d spots", len(spots))
}

func (s *Service) fetch(ctx context.Context) (*feedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Ingest.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed returned %d: %s", resp.StatusCode, body)
	}

	var feed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decoding feed: %w", err)
	}
	return &feed, nil
}

func mapFeedSpot(item FeedSpot, now time.Time) (model.ParkingSpot, error) {
	if item.ID == "" {
		return model.ParkingSpot{}, fmt.Errorf("missing id")
	}
	if item.Latitude < -90 || item.Latitude > 90 || item.Longitude < -180 || item.Longitude > 180 {
		return model.ParkingSpot{}, fmt.Errorf("coordinates (%f, %f) out of range", item.Latitude, item.Longitude)
	}

	spotType := model.SpotType(item.Type)
	switch spotType {
	case model.SpotOnStreet, model.SpotOffStreet, model.SpotResidential, model.SpotSchool:
	default:
		spotType = model.SpotOnStreet
	}

	capacity := item.Capacity
	if capacity < 0 {
		capacity = 0
	}

	return model.ParkingSpot{
		ID:          item.ID,
		Lat:         item.Latitude,
		Lng:         item.Longitude,
		Type:        spotType,
		Capacity:    capacity,
		Active:      item.Status != "inactive",
		Zone:        item.Zone,
		PriceInfo:   item.PriceInfo,
		Address:     item.Address,
		LastUpdated: now,
	}, nil
}
