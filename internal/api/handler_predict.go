package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GetPrediction handles GET /parking/predict/:spotId.
func (h *Handler) GetPrediction(c *gin.Context) {
	at := time.Now()
	if atParam := c.Query("at"); atParam != "" {
		parsed, err := time.Parse(time.RFC3339, atParam)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid 'at' timestamp, use RFC3339"})
			return
		}
		at = parsed
	}

	prediction, err := h.occupancy.Predict(c.Request.Context(), c.Param("spotId"), at)
	if err != nil {
		abortWithFault(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": prediction})
}

// GetBestTimes handles GET /parking/besttimes/:spotId.
func (h *Handler) GetBestTimes(c *gin.Context) {
	times, err := h.occupancy.BestTimes(c.Request.Context(), c.Param("spotId"))
	if err != nil {
		abortWithFault(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": times})
}
