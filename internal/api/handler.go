package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"parkingspots-backend/internal/ledger"
	"parkingspots-backend/internal/occupancy"
	"parkingspots-backend/internal/search"
	"parkingspots-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	search    *search.Service
	ledger    *ledger.Service
	occupancy *occupancy.Model
	webpush   *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, se *search.Service, le *ledger.Service, oc *occupancy.Model, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:     s,
		search:    se,
		ledger:    le,
		occupancy: oc,
		webpush:   webpushOptions,
	}
}
