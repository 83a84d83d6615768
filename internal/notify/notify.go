// Package notify hands notification jobs to the broker. Delivery happens in
// the worker; callers never see a failure.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/flicky/farm-market-api/internal/metrics"
	"github.com/flicky/farm-market-api/internal/model"
)

const (
	QueueName      = "notifications"
	publishTimeout = 5 * time.Second
)

// Publisher is the subset of *amqp.Channel the notifier needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Notifier struct {
	pub     Publisher
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewNotifier(pub Publisher, log *slog.Logger, m *metrics.Metrics) *Notifier {
	return &Notifier{pub: pub, log: log, metrics: m}
}

// Notify queues a templated message for recipient. Errors are logged and
// swallowed.
func (n *Notifier) Notify(ctx context.Context, recipient, template string, data map[string]string) {
	if n == nil {
		return
	}
	log := n.log.With("template", template, "to", recipient)
	if n.pub == nil {
		log.Warn("notification dropped, no broker channel")
		n.metrics.NotificationPublished(false)
		return
	}

	job := model.Notification{ID: uuid.New(), To: recipient, Template: template, Data: data}
	body, err := json.Marshal(job)
	if err != nil {
		log.Error("marshal notification", "error", err)
		n.metrics.NotificationPublished(false)
		return
	}

	// The request may finish before the broker confirms; keep the publish
	// alive but bounded.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err = n.pub.PublishWithContext(pubCtx, "", QueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    job.ID.String(),
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		log.Error("publish notification", "error", err)
		n.metrics.NotificationPublished(false)
		return
	}
	n.metrics.NotificationPublished(true)
}
