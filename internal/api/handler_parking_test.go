package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"parkingspots-backend/config"
	"parkingspots-backend/internal/cache"
	"parkingspots-backend/internal/db"
	"parkingspots-backend/internal/ledger"
	"parkingspots-backend/internal/model"
	"parkingspots-backend/internal/occupancy"
	"parkingspots-backend/internal/search"
	"parkingspots-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, store.Store) {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	require.NoError(t, db.Migrate(gormDB))

	s := store.NewGormStore(gormDB)
	c := cache.New(time.Minute)
	searchCfg := config.SearchConfig{
		MaxRadiusMeters:   5000,
		DefaultRadius:     500,
		MaxResults:        50,
		WalkPaceMetersMin: 80,
		QueryTimeoutSecs:  5,
	}
	se := search.NewService(s, c, searchCfg, time.Minute)
	le := ledger.NewService(s, c, nil, 0.1, 5*time.Second)
	oc := occupancy.NewModel(s, c, 0.1, time.Minute, 5*time.Second)

	router := NewRouter(s, se, le, oc, nil, RouterConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000})
	return router, s
}

func seedSpot(t *testing.T, s store.Store, id string, capacity int) {
	t.Helper()
	require.NoError(t, s.UpsertSpots(context.Background(), []model.ParkingSpot{{
		ID:          id,
		Lat:         51.0447,
		Lng:         -114.0719,
		Type:        model.SpotOnStreet,
		Capacity:    capacity,
		Active:      true,
		LastUpdated: time.Now().UTC(),
	}}))
}

func doJSON(router *gin.Engine, method, path string, payload any) (*httptest.ResponseRecorder, map[string]any) {
	var body *bytes.Buffer
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]any
	json.Unmarshal(w.Body.Bytes(), &decoded)
	return w, decoded
}

func TestGetNearbyRequiresCoordinates(t *testing.T) {
	router, _ := newTestRouter(t)

	w, body := doJSON(router, http.MethodGet, "/parking/nearby", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])

	w, _ = doJSON(router, http.MethodGet, "/parking/nearby?lat=abc&lng=-114.0719", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(router, http.MethodGet, "/parking/nearby?lat=91&lng=-114.0719", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetNearbyReturnsSpots(t *testing.T) {
	router, s := newTestRouter(t)
	seedSpot(t, s, "spot-1", 2)

	w, body := doJSON(router, http.MethodGet, "/parking/nearby?lat=51.0447&lng=-114.0719&radius=500", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 1, body["count"])

	data := body["data"].([]any)
	spot := data[0].(map[string]any)
	assert.Equal(t, "spot-1", spot["id"])
	assert.EqualValues(t, 2, spot["available"])
}

func TestGetSpotNotFound(t *testing.T) {
	router, _ := newTestRouter(t)
	w, body := doJSON(router, http.MethodGet, "/parking/spot/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, body["success"])
}

func TestCheckInLifecycle(t *testing.T) {
	router, s := newTestRouter(t)
	seedSpot(t, s, "spot-1", 2)

	w, body := doJSON(router, http.MethodPost, "/parking/checkin", map[string]any{
		"deviceId": "device-1",
		"spotId":   "spot-1",
		"duration": 30,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, body["success"])
	checkInID := body["checkInId"].(string)
	require.NotEmpty(t, checkInID)

	details := body["spotDetails"].(map[string]any)
	assert.EqualValues(t, 2, details["capacity"])
	assert.EqualValues(t, 1, details["available"])

	// The session endpoint reflects the active check-in.
	w, body = doJSON(router, http.MethodGet, "/parking/session?deviceId=device-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sess := body["data"].(map[string]any)
	assert.Equal(t, checkInID, sess["id"])

	w, body = doJSON(router, http.MethodPost, "/parking/checkout", map[string]any{
		"deviceId":  "device-1",
		"checkInId": checkInID,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "spot-1", body["spotId"])

	// No active session remains.
	w, body = doJSON(router, http.MethodGet, "/parking/session?deviceId=device-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, body["data"])
}

func TestCheckInValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	w, _ := doJSON(router, http.MethodPost, "/parking/checkin", map[string]any{"deviceId": "device-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(router, http.MethodPost, "/parking/checkin", map[string]any{"spotId": "spot-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckInUnknownSpot(t *testing.T) {
	router, _ := newTestRouter(t)
	w, _ := doJSON(router, http.MethodPost, "/parking/checkin", map[string]any{
		"deviceId": "device-1",
		"spotId":   "nope",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckInConflicts(t *testing.T) {
	router, s := newTestRouter(t)
	seedSpot(t, s, "spot-1", 1)
	seedSpot(t, s, "spot-2", 1)

	w, _ := doJSON(router, http.MethodPost, "/parking/checkin", map[string]any{
		"deviceId": "device-1", "spotId": "spot-1",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// Same device cannot hold a second session anywhere.
	w, body := doJSON(router, http.MethodPost, "/parking/checkin", map[string]any{
		"deviceId": "device-1", "spotId": "spot-2",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, body["error"], "active session")

	// Another device finds spot-1 full.
	w, _ = doJSON(router, http.MethodPost, "/parking/checkin", map[string]any{
		"deviceId": "device-2", "spotId": "spot-1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCheckOutUnknownSession(t *testing.T) {
	router, _ := newTestRouter(t)
	w, _ := doJSON(router, http.MethodPost, "/parking/checkout", map[string]any{
		"deviceId": "device-1", "checkInId": "00000000-0000-0000-0000-000000000000",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetPredictionZeroHistory(t *testing.T) {
	router, s := newTestRouter(t)
	seedSpot(t, s, "spot-1", 2)

	w, body := doJSON(router, http.MethodGet, "/parking/predict/spot-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	data := body["data"].(map[string]any)
	assert.EqualValues(t, 50, data["predictedOccupancy"])
	assert.EqualValues(t, 0, data["confidence"])
	assert.Equal(t, "moderate", data["busyLevel"])
}

func TestGetPredictionUnknownSpot(t *testing.T) {
	router, _ := newTestRouter(t)
	w, _ := doJSON(router, http.MethodGet, "/parking/predict/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetPredictionBadTimestamp(t *testing.T) {
	router, s := newTestRouter(t)
	seedSpot(t, s, "spot-1", 2)

	w, _ := doJSON(router, http.MethodGet, "/parking/predict/spot-1?at=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetBestTimesNoHistory(t *testing.T) {
	router, s := newTestRouter(t)
	seedSpot(t, s, "spot-1", 2)

	w, _ := doJSON(router, http.MethodGet, "/parking/besttimes/spot-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetBestTimesWithHistory(t *testing.T) {
	router, s := newTestRouter(t)
	seedSpot(t, s, "spot-1", 2)

	ctx := context.Background()
	for _, hour := range []int{8, 9, 17} {
		for i := 0; i < 3; i++ {
			_, err := s.RecordObservation(ctx, "spot-1", 1, hour, 0.1)
			require.NoError(t, err)
		}
	}

	w, body := doJSON(router, http.MethodGet, "/parking/besttimes/spot-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	times := body["data"].([]any)
	require.Len(t, times, 3)
}
