package client

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"parkingspots-backend/config"
	"parkingspots-backend/internal/api"
	"parkingspots-backend/internal/cache"
	"parkingspots-backend/internal/db"
	"parkingspots-backend/internal/ledger"
	"parkingspots-backend/internal/model"
	"parkingspots-backend/internal/occupancy"
	"parkingspots-backend/internal/search"
	"parkingspots-backend/internal/store"
)

// recordingNotifier stands in for the push pipeline and hands updates
// straight to the client under test. Dispatch runs on server goroutines,
// so access is locked.
type recordingNotifier struct {
	mu      sync.Mutex
	updates []string
	client  *Client
}

func (n *recordingNotifier) Dispatch(spotID string, available int) {
	n.mu.Lock()
	n.updates = append(n.updates, spotID)
	n.mu.Unlock()
	if n.client != nil {
		n.client.HandleSpotUpdate(spotID)
	}
}

func (n *recordingNotifier) seen() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.updates...)
}

// TestClientServerCacheCoherence walks the full loop: a search populates
// both the server and client caches, a check-in invalidates the server
// cache and pushes an update, the pushed update drops the client's local
// entries, and the next search observes the reduced availability.
func TestClientServerCacheCoherence(t *testing.T) {
	gin.SetMode(gin.TestMode)

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	require.NoError(t, db.Migrate(gormDB))

	s := store.NewGormStore(gormDB)
	serverCache := cache.New(time.Minute)
	searchCfg := config.SearchConfig{
		MaxRadiusMeters:   5000,
		DefaultRadius:     500,
		MaxResults:        50,
		WalkPaceMetersMin: 80,
		QueryTimeoutSecs:  5,
	}
	se := search.NewService(s, serverCache, searchCfg, time.Minute)

	notifier := &recordingNotifier{}
	le := ledger.NewService(s, serverCache, notifier, 0.1, 5*time.Second)
	oc := occupancy.NewModel(s, serverCache, 0.1, time.Minute, 5*time.Second)

	router := api.NewRouter(s, se, le, oc, nil, api.RouterConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000})
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx := context.Background()
	require.NoError(t, s.UpsertSpots(ctx, []model.ParkingSpot{{
		ID: "spot-1", Lat: 51.0447, Lng: -114.0719, Type: model.SpotOnStreet,
		Capacity: 2, Active: true, LastUpdated: time.Now().UTC(),
	}}))

	c := New(srv.URL)
	notifier.client = c

	spots, err := c.Nearby(ctx, 51.0447, -114.0719, 500, "", false)
	require.NoError(t, err)
	require.Len(t, spots, 1)
	assert.Equal(t, 2, spots[0].Available)

	resp, err := c.CheckIn(ctx, "device-1", "spot-1", 30)
	require.NoError(t, err)
	checkInID := resp["checkInId"].(string)
	require.NotEmpty(t, checkInID)
	require.Equal(t, []string{"spot-1"}, notifier.seen())

	// Both cache layers were invalidated, so the repeat search sees the
	// occupied space without waiting for any TTL.
	spots, err = c.Nearby(ctx, 51.0447, -114.0719, 500, "", false)
	require.NoError(t, err)
	require.Len(t, spots, 1)
	assert.Equal(t, 1, spots[0].Available)

	_, err = c.CheckOut(ctx, "device-1", checkInID)
	require.NoError(t, err)
	require.Len(t, notifier.seen(), 2)

	spots, err = c.Nearby(ctx, 51.0447, -114.0719, 500, "", false)
	require.NoError(t, err)
	require.Len(t, spots, 1)
	assert.Equal(t, 2, spots[0].Available)
}
