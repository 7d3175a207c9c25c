package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

// channel is the subset of *amqp091.Channel used for publishing.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPDispatcher publishes alerts to a durable direct exchange. A publish
// that fails on a broken connection reconnects and retries with exponential
// backoff.
type AMQPDispatcher struct {
	Exchange   string
	RoutingKey string
	Logger     *slog.Logger

	MaxAttempts int
	BaseBackoff time.Duration

	mu        sync.Mutex
	ch        channel
	conn      *amqp091.Connection
	reconnect func() (channel, error)
}

// NewAMQPDispatcher dials url and declares exchange, queue and binding. The
// queue name doubles as routing key.
func NewAMQPDispatcher(url, exchange, queue string, logger *slog.Logger) (*AMQPDispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &AMQPDispatcher{
		Exchange:    exchange,
		RoutingKey:  queue,
		Logger:      logger.With("component", "amqp-dispatcher"),
		MaxAttempts: 3,
		BaseBackoff: time.Second,
	}
	d.reconnect = func() (channel, error) {
		return d.connect(url, exchange, queue)
	}

	ch, err := d.reconnect()
	if err != nil {
		return nil, err
	}
	d.ch = ch
	return d, nil
}

func (d *AMQPDispatcher) connect(url, exchange, queue string) (channel, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := setup(ch, exchange, queue); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	if d.conn != nil {
		d.conn.Close()
	}
	d.conn = conn
	return ch, nil
}

func setup(ch *amqp091.Channel, exchange, queue string) error {
	err := ch.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// Dispatch publishes msg as a persistent JSON message.
func (d *AMQPDispatcher) Dispatch(ctx context.Context, msg AlertMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	attempts := d.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; ; attempt++ {
		err = d.publish(ctx, body)
		if err == nil {
			d.logger().InfoContext(ctx, "published budget alert",
				"budget_id", msg.BudgetID,
				"month", msg.Month,
				"threshold", msg.Threshold,
				"exchange", d.Exchange)
			return nil
		}
		if attempt+1 >= attempts || !isConnectionError(err) {
			return fmt.Errorf("publish message: %w", err)
		}

		wait := exponentialBackoff(d.BaseBackoff, attempt)
		d.logger().WarnContext(ctx, "publish failed, reconnecting",
			"attempt", attempt+1, "backoff", wait, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if err := d.redial(); err != nil {
			d.logger().WarnContext(ctx, "reconnect failed", "error", err)
		}
	}
}

func (d *AMQPDispatcher) publish(ctx context.Context, body []byte) error {
	d.mu.Lock()
	ch := d.ch
	d.mu.Unlock()
	if ch == nil {
		return errors.New("connection closed")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return ch.PublishWithContext(
		ctx,
		d.Exchange,   // exchange
		d.RoutingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

func (d *AMQPDispatcher) redial() error {
	if d.reconnect == nil {
		return errors.New("reconnect not configured")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ch, err := d.reconnect()
	if err != nil {
		return err
	}
	if d.ch != nil {
		d.ch.Close()
	}
	d.ch = ch
	return nil
}

// Close releases the channel and connection.
func (d *AMQPDispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ch != nil {
		d.ch.Close()
		d.ch = nil
	}
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

func (d *AMQPDispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// exponentialBackoff doubles base per attempt, capped at 30s.
func exponentialBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	wait := base
	for i := 0; i < attempt; i++ {
		wait *= 2
		if wait >= maxBackoff {
			return maxBackoff
		}
	}
	return wait
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection refused", "connection closed", "EOF", "broken pipe", "use of closed network connection"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
