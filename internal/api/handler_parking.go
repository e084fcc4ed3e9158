package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"parkingspots-backend/internal/fault"
	"parkingspots-backend/internal/model"
	"parkingspots-backend/internal/search"
)

// GetNearby handles GET /parking/nearby?lat&lng&radius&type&free.
func (h *Handler) GetNearby(c *gin.Context) {
	latParam := c.Query("lat")
	lngParam := c.Query("lng")
	if latParam == "" || lngParam == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "lat and lng are required"})
		return
	}

	lat, err := strconv.ParseFloat(latParam, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid lat"})
		return
	}
	lng, err := strconv.ParseFloat(lngParam, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid lng"})
		return
	}

	q := search.Query{Lat: lat, Lng: lng}
	if radiusParam := c.Query("radius"); radiusParam != "" {
		radius, err := strconv.ParseFloat(radiusParam, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid radius"})
			return
		}
		q.Radius = radius
	}
	q.Type = model.SpotType(c.Query("type"))
	q.FreeOnly = c.Query("free") == "true"

	spots, err := h.search.FindNearby(c.Request.Context(), q)
	if err != nil {
		abortWithFault(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(spots),
		"data":    spots,
	})
}

// GetSpot handles GET /parking/spot/:id.
func (h *Handler) GetSpot(c *gin.Context) {
	spot, err := h.search.GetSpot(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithFault(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": spot})
}

type checkInRequest struct {
	DeviceID string `json:"deviceId" binding:"required"`
	SpotID   string `json:"spotId" binding:"required"`
	Duration int    `json:"duration"` // minutes
}

// PostCheckIn handles POST /parking/checkin.
func (h *Handler) PostCheckIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	result, err := h.ledger.CheckIn(c.Request.Context(), req.DeviceID, req.SpotID, time.Duration(req.Duration)*time.Minute)
	if err != nil {
		abortWithFault(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"checkInId":    result.Session.ID,
		"spotId":       result.Session.SpotID,
		"scheduledEnd": result.Session.ScheduledEnd,
		"spotDetails": gin.H{
			"type":      result.Spot.Type,
			"address":   result.Spot.Address,
			"zone":      result.Spot.Zone,
			"capacity":  result.Spot.EffectiveCapacity(),
			"available": result.Available,
		},
	})
}

type checkOutRequest struct {
	DeviceID  string `json:"deviceId" binding:"required"`
	CheckInID string `json:"checkInId" binding:"required"`
}

// PostCheckOut handles POST /parking/checkout.
func (h *Handler) PostCheckOut(c *gin.Context) {
	var req checkOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	result, err := h.ledger.CheckOut(c.Request.Context(), req.DeviceID, req.CheckInID)
	if err != nil {
		abortWithFault(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"spotId":          result.Session.SpotID,
		"durationMinutes": int(result.Duration.Minutes()),
	})
}

// GetActiveSession handles GET /parking/session?deviceId=.
func (h *Handler) GetActiveSession(c *gin.Context) {
	deviceID := c.Query("deviceId")
	sess, err := h.ledger.ActiveSession(c.Request.Context(), deviceID)
	if err != nil {
		abortWithFault(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": sess})
}

func abortWithFault(c *gin.Context, err error) {
	c.AbortWithStatusJSON(fault.HTTPStatus(err), gin.H{"success": false, "error": err.Error()})
}
