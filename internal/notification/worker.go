package notification

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"brewery-production-backend/internal/appctx"
	"brewery-production-backend/internal/logging"
	"brewery-production-backend/internal/metrics"
	"brewery-production-backend/internal/model"
)

// AlertKind classifies an operational alert.
type AlertKind string

const (
	AlertLowStock      AlertKind = "LOW_STOCK"
	AlertNegativeStock AlertKind = "NEGATIVE_STOCK"
	AlertTankNeedsCIP  AlertKind = "TANK_NEEDS_CIP"
)

// Alert is one message for every subscriber of a tenant.
type Alert struct {
	TenantID string    `json:"-"`
	Kind     AlertKind `json:"kind"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
}

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real implementation of NotificationSender.
type WebPushSender struct{}

func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool delivers alerts with a fixed number of workers.
type WorkerPool struct {
	size    int
	jobs    chan Alert
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	logger  *logrus.Logger
}

func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, logger *logrus.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Alert, size*16),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		logger:  logger,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.logger.WithField("worker", id).Debug("alert worker started")
	for {
		select {
		case alert := <-wp.jobs:
			wp.deliver(ctx, alert)
		case <-ctx.Done():
			wp.logger.WithField("worker", id).Debug("alert worker shutting down")
			return
		}
	}
}

// Dispatch queues an alert. It never blocks the caller; when the queue is
// full the alert is dropped and logged.
func (wp *WorkerPool) Dispatch(alert Alert) {
	select {
	case wp.jobs <- alert:
	default:
		metrics.AlertsSent.WithLabelValues(string(alert.Kind), "dropped").Inc()
		wp.logger.WithFields(logrus.Fields{
			"tenant": alert.TenantID,
			"kind":   alert.Kind,
		}).Warn("alert queue full; dropping alert")
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Alert {
	return wp.jobs
}

func (wp *WorkerPool) deliver(ctx context.Context, alert Alert) {
	ctx = appctx.WithTenant(ctx, alert.TenantID)

	var subscriptions []model.AlertSubscription
	if err := wp.db.WithContext(ctx).
		Where("tenant_id = ?", alert.TenantID).
		Find(&subscriptions).Error; err != nil {
		logging.LogError(wp.logger, "notification", "deliver", "fetch subscriptions", alert.TenantID, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		logging.LogError(wp.logger, "notification", "deliver", "encode alert", alert, err)
		return
	}
	for _, sub := range subscriptions {
		wp.send(ctx, sub, alert.Kind, payload)
	}
}

func (wp *WorkerPool) send(ctx context.Context, sub model.AlertSubscription, kind AlertKind, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		metrics.AlertsSent.WithLabelValues(string(kind), "error").Inc()
		wp.logger.WithField("endpoint", sub.Endpoint).Warnf("error sending alert: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		metrics.AlertsSent.WithLabelValues(string(kind), "expired").Inc()
		wp.logger.WithField("endpoint", sub.Endpoint).Info("subscription expired; deleting")
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			logging.LogError(wp.logger, "notification", "send", "delete expired subscription", sub.Endpoint, err)
		}
		return
	}
	metrics.AlertsSent.WithLabelValues(string(kind), "sent").Inc()
}
