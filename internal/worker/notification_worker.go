package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/farm-market-api/internal/mail"
	"github.com/flicky/farm-market-api/internal/metrics"
	"github.com/flicky/farm-market-api/internal/model"
	"github.com/flicky/farm-market-api/internal/notify"
)

const (
	dlxExchange    = "notifications.dlx"
	dlqQueueName   = "notifications.dlq"
	idempotencyTTL = 24 * time.Hour
	sentKeyPrefix  = "notification_sent:"
)

// Consumer is the subset of *amqp.Channel the worker reads from.
type Consumer interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// SentLog remembers which notification ids were already delivered.
type SentLog interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
}

type redisSentLog struct{ client *redis.Client }

func NewRedisSentLog(client *redis.Client) SentLog {
	return &redisSentLog{client: client}
}

func (r *redisSentLog) Seen(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, sentKeyPrefix+id).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *redisSentLog) Mark(ctx context.Context, id string) error {
	return r.client.Set(ctx, sentKeyPrefix+id, "1", idempotencyTTL).Err()
}

type NotificationWorker struct {
	channel Consumer
	sent    SentLog
	sender  mail.Sender
	log     *slog.Logger
	metrics *metrics.Metrics
	done    chan struct{}
}

// NewNotificationWorker builds a worker. A nil sender means mail is
// disabled: jobs are logged and acknowledged without delivery.
func NewNotificationWorker(ch Consumer, sent SentLog, sender mail.Sender, log *slog.Logger, m *metrics.Metrics) *NotificationWorker {
	return &NotificationWorker{
		channel: ch,
		sent:    sent,
		sender:  sender,
		log:     log,
		metrics: m,
		done:    make(chan struct{}),
	}
}

// SetupRabbitMQ declares the notification queue and its dead-letter route.
func SetupRabbitMQ(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(dlqQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(dlqQueueName, notify.QueueName, dlxExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(notify.QueueName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    dlxExchange,
		"x-dead-letter-routing-key": notify.QueueName,
	}); err != nil {
		return fmt.Errorf("declare notification queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	return nil
}

func (w *NotificationWorker) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(notify.QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				w.processMessage(ctx, msg)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("notification worker started", "mail_enabled", w.sender != nil)
	return nil
}

func (w *NotificationWorker) Stop() { close(w.done) }

func (w *NotificationWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	var job model.Notification
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		w.log.Error("unmarshal notification", "error", err)
		_ = msg.Nack(false, false)
		return
	}

	id := job.ID.String()
	log := w.log.With("notification_id", id, "template", job.Template)

	seen, err := w.sent.Seen(ctx, id)
	if err != nil {
		log.Error("check idempotency key", "error", err)
		_ = msg.Nack(false, true)
		return
	}
	if seen {
		log.Info("notification already sent, skipping")
		_ = msg.Ack(false)
		return
	}

	if err := w.deliver(ctx, job); err != nil {
		log.Error("deliver notification failed", "error", err)
		w.metrics.NotificationDelivered(false)
		_ = msg.Nack(false, false) // dead-lettered
		return
	}

	if err := w.sent.Mark(ctx, id); err != nil {
		log.Error("set idempotency key", "error", err)
	}
	w.metrics.NotificationDelivered(true)
	_ = msg.Ack(false)
	log.Info("notification processed")
}

func (w *NotificationWorker) deliver(ctx context.Context, job model.Notification) error {
	subject, body, err := mail.Render(job.Template, job.Data)
	if err != nil {
		return err
	}
	if w.sender == nil {
		w.log.Info("mail disabled, notification not sent", "to", job.To, "subject", subject)
		return nil
	}
	if err := w.sender.Send(ctx, job.To, subject, body); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
