package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"parkingspots-backend/internal/ledger"
	"parkingspots-backend/internal/mw"
	"parkingspots-backend/internal/occupancy"
	"parkingspots-backend/internal/search"
	"parkingspots-backend/internal/store"
)

// RouterConfig carries the rate-limit settings for the router.
type RouterConfig struct {
	RateLimitPerSec float64
	RateLimitBurst  int
}

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, se *search.Service, le *ledger.Service, oc *occupancy.Model, webpushOptions *webpush.Options, rc RouterConfig) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, se, le, oc, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(rc.RateLimitPerSec), rc.RateLimitBurst)

	parking := r.Group("/parking")
	parking.Use(rateLimiter)
	{
		parking.GET("/nearby", handler.GetNearby)
		parking.GET("/spot/:id", handler.GetSpot)
		parking.POST("/checkin", handler.PostCheckIn)
		parking.POST("/checkout", handler.PostCheckOut)
		parking.GET("/session", handler.GetActiveSession)
		parking.GET("/predict/:spotId", handler.GetPrediction)
		parking.GET("/besttimes/:spotId", handler.GetBestTimes)
	}

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
