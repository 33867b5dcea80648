package pricecheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"joinpounce/config"
	"joinpounce/internal/pkg/amqpclient"
)

var ErrHandlerMissing = errors.New("pricecheck handler missing")

type Handler interface {
	Handle(ctx context.Context, msg PriceObservedEnvelope) error
}

// channel is the subset of *amqp.Channel the consumer uses.
type channel interface {
	amqpclient.Declarer
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
}

type Consumer struct {
	cfg      *config.Config
	topology amqpclient.Topology
	channel  channel
	handler  Handler
	logger   *zap.SugaredLogger

	consumerTag string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type NewConsumerParams struct {
	fx.In

	Config  *config.Config
	Channel *amqp.Channel `optional:"true"`
	Handler Handler       `optional:"true"`
	Logger  *zap.SugaredLogger
}

func NewConsumer(p NewConsumerParams) *Consumer {
	c := newConsumer(p.Config, nil, p.Handler, p.Logger)
	if p.Channel != nil {
		c.channel = p.Channel
	}
	return c
}

func newConsumer(cfg *config.Config, ch channel, h Handler, logger *zap.SugaredLogger) *Consumer {
	if h == nil {
		h = missingHandler{}
	}
	return &Consumer{
		cfg:         cfg,
		topology:    amqpclient.NewTopology(cfg.RabbitMQ),
		channel:     ch,
		handler:     h,
		logger:      logger,
		consumerTag: "pricecheck",
	}
}

// Start begins consuming. Deliveries are handled on a context owned by the
// consumer, so they outlive the start hook and stop with Stop.
func (c *Consumer) Start(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.RabbitMQ.URL) == "" || c.channel == nil {
		c.logger.Infow("pricecheck_disabled", "reason", "missing rabbitmq config or channel")
		return nil
	}

	if c.cfg.RabbitMQ.DeclareTopology {
		if err := c.topology.Declare(c.channel); err != nil {
			return err
		}
		c.logger.Infow("pricecheck_topology_declared",
			"exchange", c.topology.Exchange,
			"queue", c.topology.Queue,
			"routing_key", c.topology.RoutingKey,
			"dlx", c.topology.DLX,
			"dlq", c.topology.DLQ,
		)
	}

	prefetch := c.cfg.RabbitMQ.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := c.channel.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("rabbitmq qos: %w", err)
	}

	deliveries, err := c.channel.Consume(
		c.topology.Queue,
		c.consumerTag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("rabbitmq consume: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel, c.done = cancel, done
	c.mu.Unlock()

	c.logger.Infow("pricecheck_started", "queue", c.topology.Queue, "prefetch", prefetch)

	go func() {
		defer close(done)
		for {
			select {
			case <-runCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				c.handleDelivery(runCtx, d)
			}
		}
	}()

	return nil
}

func (c *Consumer) Stop(ctx context.Context) error {
	if c.channel == nil {
		return nil
	}
	_ = c.channel.Cancel(c.consumerTag, false)

	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	eventID := strings.TrimSpace(d.MessageId)
	if eventID == "" {
		eventID = strings.TrimSpace(d.CorrelationId)
	}

	var msg PriceObservedEnvelope
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Errorw("pricecheck_invalid_json", "err", err, "message_id", eventID)
		_ = d.Reject(false)
		return
	}

	if strings.TrimSpace(msg.EventID) == "" {
		msg.EventID = eventID
	}
	if strings.TrimSpace(msg.EventID) == "" {
		c.logger.Errorw("pricecheck_missing_event_id", "event_name", msg.EventName)
		_ = d.Reject(false)
		return
	}

	if err := c.handler.Handle(ctx, msg); err != nil {
		c.logger.Errorw("pricecheck_handle_failed",
			"err", err,
			"event_id", msg.EventID,
			"item_id", msg.Data.ItemID,
		)
		_ = d.Reject(false)
		return
	}

	_ = d.Ack(false)
}

type missingHandler struct{}

func (missingHandler) Handle(context.Context, PriceObservedEnvelope) error {
	return ErrHandlerMissing
}
