package notification

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"facility-finder-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Message is the JSON payload delivered to subscribers.
type Message struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	LocationID string `json:"locationId"`
}

// WorkerPool manages a pool of workers that alert the subscribers of a
// location.
type WorkerPool struct {
	size    int
	jobs    chan string
	db      *gorm.DB
	names   map[string]string
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool. names maps location ids to the
// display names used in messages.
func NewWorkerPool(size int, db *gorm.DB, names map[string]string, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan string, size*8),
		db:      db,
		names:   names,
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
	log.Printf("Worker %d started", id)
	for {
		select {
		case locationID := <-wp.jobs:
			log.Printf("Worker %d processing location %s", id, locationID)
			wp.sendNotificationsForLocation(ctx, locationID)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues an alert for locationID. It never blocks: when the queue
// is full the alert is dropped and logged.
func (wp *WorkerPool) Dispatch(locationID string) bool {
	select {
	case wp.jobs <- locationID:
		return true
	default:
		log.Printf("Notification queue full; dropping alert for %s", locationID)
		return false
	}
}

// sendNotificationsForLocation loads the subscribers of a location and
// alerts each of them.
func (wp *WorkerPool) sendNotificationsForLocation(ctx context.Context, locationID string) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_locations sl ON sl.endpoint = push_subscriptions.endpoint").
		Where("sl.location_id = ?", locationID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for location %s: %v", locationID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for location %s", len(subscriptions), locationID)

	name := locationID
	if n, ok := wp.names[locationID]; ok && n != "" {
		name = n
	}
	payload, err := json.Marshal(Message{
		Title:      name + " is not busy",
		Body:       "Now is a good time to head to " + name + ".",
		LocationID: locationID,
	})
	if err != nil {
		log.Printf("Error encoding notification for %s: %v", locationID, err)
		return
	}

	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := DeleteSubscription(ctx, wp.db, sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
