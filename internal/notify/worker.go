package notify

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"parkingspots-backend/internal/model"
)

// SpotUpdate is one availability delta to broadcast.
type SpotUpdate struct {
	SpotID    string `json:"spotId"`
	Available int    `json:"available"`
}

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of Sender using the webpush
// library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool broadcasts spot-availability deltas to subscribed clients.
// Delivery is best-effort: Dispatch never blocks, and send failures are
// logged and dropped. Clients that receive an update drop their own cached
// entries for the spot, which is the push half of cache coherence; clients
// without a subscription fall back to TTL staleness.
type WorkerPool struct {
	size    int
	jobs    chan SpotUpdate
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan SpotUpdate, size*4),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("notify: worker %d started", id)
	for {
		select {
		case update := <-wp.jobs:
			wp.broadcast(ctx, update)
		case <-ctx.Done():
			log.Printf("notify: worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues an update without blocking. A full queue drops the update;
// observers tolerate missed deltas.
func (wp *WorkerPool) Dispatch(spotID string, available int) {
	if wp == nil {
		return
	}
	select {
	case wp.jobs <- SpotUpdate{SpotID: spotID, Available: available}:
	default:
		log.Printf("notify: queue full, dropping update for spot %s", spotID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan SpotUpdate {
	return wp.jobs
}

// broadcast fetches the spot's subscribers and sends each one the update.
func (wp *WorkerPool) broadcast(ctx context.Context, update SpotUpdate) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_spot_mapping ssm ON ssm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("ssm.parking_spot_id = ?", update.SpotID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("notify: fetching subscriptions for spot %s: %v", update.SpotID, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(struct {
		Type string `json:"type"`
		SpotUpdate
	}{Type: "spot_update", SpotUpdate: update})
	if err != nil {
		log.Printf("notify: encoding update for spot %s: %v", update.SpotID, err)
		return
	}

	log.Printf("notify: sending %d updates for spot %s", len(subscriptions), update.SpotID)
	for _, sub := range subscriptions {
		wp.send(ctx, sub, payload)
	}
}

// send pushes one notification and prunes the subscription if the endpoint
// reports it gone.
func (wp *WorkerPool) send(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("notify: sending to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Printf("notify: subscription %s expired, deleting", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("notify: deleting expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
