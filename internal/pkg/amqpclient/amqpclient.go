package amqpclient

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"joinpounce/config"
)

type NewAMQPParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Logger    *zap.SugaredLogger
}

type AMQPOut struct {
	fx.Out

	Conn    *amqp.Connection
	Channel *amqp.Channel
}

// NewAMQP dials RabbitMQ. Without RABBITMQ_URL both outputs are nil and the
// publisher and consumer switch themselves off.
func NewAMQP(p NewAMQPParams) (AMQPOut, error) {
	url := strings.TrimSpace(p.Config.RabbitMQ.URL)
	if url == "" {
		p.Logger.Infow("rabbitmq_disabled", "reason", "missing RABBITMQ_URL")
		return AMQPOut{}, nil
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return AMQPOut{}, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return AMQPOut{}, fmt.Errorf("rabbitmq channel: %w", err)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = ch.Close()
			_ = conn.Close()
			return nil
		},
	})

	t := NewTopology(p.Config.RabbitMQ)
	p.Logger.Infow(
		"rabbitmq_enabled",
		"exchange", t.Exchange,
		"queue", t.Queue,
		"routing_key", t.RoutingKey,
		"prefetch", p.Config.RabbitMQ.Prefetch,
		"declare_topology", p.Config.RabbitMQ.DeclareTopology,
	)

	return AMQPOut{Conn: conn, Channel: ch}, nil
}

// Topology names the exchange, queue and dead-letter pair that carry price
// observations.
type Topology struct {
	Exchange   string
	Queue      string
	RoutingKey string
	DLX        string
	DLQ        string
}

func NewTopology(cfg config.RabbitMQConfig) Topology {
	t := Topology{
		Exchange:   strings.TrimSpace(cfg.Exchange),
		Queue:      strings.TrimSpace(cfg.Queue),
		RoutingKey: strings.TrimSpace(cfg.RoutingKey),
	}
	if t.Exchange == "" {
		t.Exchange = "pounce"
	}
	if t.Queue == "" {
		t.Queue = "pounce.prices.observed"
	}
	if t.RoutingKey == "" {
		t.RoutingKey = "prices.observed"
	}
	t.DLX = t.Exchange + ".dlx"
	t.DLQ = t.Queue + ".dlq"
	return t
}

// Declarer is the part of *amqp.Channel that declares topology.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// DeclareExchange declares only the topic exchange; publishers need nothing
// more.
func (t Topology) DeclareExchange(ch Declarer) error {
	if err := ch.ExchangeDeclare(t.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq exchange declare %q: %w", t.Exchange, err)
	}
	return nil
}

// Declare sets up the exchange, the work queue and its dead-letter queue.
// Rejected messages land in the DLQ.
func (t Topology) Declare(ch Declarer) error {
	if err := t.DeclareExchange(ch); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(t.DLX, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq dlx exchange declare %q: %w", t.DLX, err)
	}

	args := amqp.Table{"x-dead-letter-exchange": t.DLX}
	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("rabbitmq queue declare %q: %w", t.Queue, err)
	}
	if _, err := ch.QueueDeclare(t.DLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq dlq declare %q: %w", t.DLQ, err)
	}

	if err := ch.QueueBind(t.Queue, t.RoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("rabbitmq queue bind queue=%q key=%q ex=%q: %w", t.Queue, t.RoutingKey, t.Exchange, err)
	}
	if err := ch.QueueBind(t.DLQ, t.RoutingKey, t.DLX, false, nil); err != nil {
		return fmt.Errorf("rabbitmq dlq bind queue=%q key=%q ex=%q: %w", t.DLQ, t.RoutingKey, t.DLX, err)
	}
	return nil
}
