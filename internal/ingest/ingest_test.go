package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"parkingspots-backend/config"
	"parkingspots-backend/internal/db"
	"parkingspots-backend/internal/model"
	"parkingspots-backend/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	require.NoError(t, db.Migrate(gormDB))
	return store.NewGormStore(gormDB)
}

func newService(feedURL string, s store.Store) *Service {
	cfg := &config.Config{}
	cfg.Ingest.Enabled = true
	cfg.Ingest.URL = feedURL
	cfg.Ingest.Interval = time.Hour
	return NewService(cfg, s)
}

func serveFeed(spots []FeedSpot) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(feedResponse{Total: len(spots), Spots: spots})
	}))
}

func TestRefreshOncePopulatesCatalog(t *testing.T) {
	srv := serveFeed([]FeedSpot{
		{ID: "feed-1", Latitude: 51.0447, Longitude: -114.0719, Type: "on_street", Capacity: 2, Status: "active", Zone: "A", PriceInfo: "$2.00/hr"},
		{ID: "feed-2", Latitude: 51.05, Longitude: -114.07, Type: "off_street", Capacity: 40, Status: "active"},
		{ID: "feed-3", Latitude: 51.04, Longitude: -114.08, Type: "carpark", Status: "inactive"},
	})
	defer srv.Close()

	s := newTestStore(t)
	svc := newService(srv.URL, s)
	ctx := context.Background()

	svc.RefreshOnce(ctx)

	spot, err := s.GetSpot(ctx, "feed-1")
	require.NoError(t, err)
	assert.Equal(t, model.SpotOnStreet, spot.Type)
	assert.Equal(t, 2, spot.Capacity)
	assert.True(t, spot.Active)
	assert.Equal(t, "A", spot.Zone)

	// An unknown feed type falls back to on_street; inactive status sticks.
	spot, err = s.GetSpot(ctx, "feed-3")
	require.NoError(t, err)
	assert.Equal(t, model.SpotOnStreet, spot.Type)
	assert.False(t, spot.Active)

	active, err := s.ActiveSpots(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestRefreshOnceSkipsBadRecords(t *testing.T) {
	srv := serveFeed([]FeedSpot{
		{ID: "", Latitude: 51.0, Longitude: -114.0},
		{ID: "bad-coords", Latitude: 99, Longitude: -114.0},
		{ID: "good", Latitude: 51.0, Longitude: -114.0, Type: "on_street", Capacity: 1, Status: "active"},
	})
	defer srv.Close()

	s := newTestStore(t)
	newService(srv.URL, s).RefreshOnce(context.Background())

	active, err := s.ActiveSpots(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "good", active[0].ID)
}

func TestRefreshKeepsCatalogOnFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertSpots(ctx, []model.ParkingSpot{{
		ID: "existing", Lat: 51.0, Lng: -114.0, Type: model.SpotOnStreet,
		Capacity: 1, Active: true, LastUpdated: time.Now().UTC(),
	}}))

	// Server error.
	errSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	newService(errSrv.URL, s).RefreshOnce(ctx)
	errSrv.Close()

	// Empty feed.
	emptySrv := serveFeed(nil)
	newService(emptySrv.URL, s).RefreshOnce(ctx)
	emptySrv.Close()

	// Unreachable server.
	newService(errSrv.URL, s).RefreshOnce(ctx)

	active, err := s.ActiveSpots(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "existing", active[0].ID)
}

func TestRefreshUpdatesExistingSpots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertSpots(ctx, []model.ParkingSpot{{
		ID: "feed-1", Lat: 51.0, Lng: -114.0, Type: model.SpotOnStreet,
		Capacity: 2, Active: true, LastUpdated: time.Now().UTC(),
	}}))

	srv := serveFeed([]FeedSpot{
		{ID: "feed-1", Latitude: 51.0, Longitude: -114.0, Type: "on_street", Capacity: 5, Status: "inactive"},
	})
	defer srv.Close()

	newService(srv.URL, s).RefreshOnce(ctx)

	spot, err := s.GetSpot(ctx, "feed-1")
	require.NoError(t, err)
	assert.Equal(t, 5, spot.Capacity)
	assert.False(t, spot.Active)
}
