package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RowExchange is the topic exchange row changes are published on. Routing
// keys have the form "<table>.<kind>".
const RowExchange = "lostfound.rows"

// AMQPFeed is a RowFeed backed by a RabbitMQ topic exchange. Each
// subscription owns an exclusive auto-delete queue bound to its table.
type AMQPFeed struct {
	conn *amqp.Connection
	log  *zap.Logger

	mu  sync.Mutex
	pub *amqp.Channel
}

// DialAMQP connects to the broker, retrying with exponential backoff until
// ctx is done, and declares the row exchange.
func DialAMQP(ctx context.Context, url string, log *zap.Logger) (*AMQPFeed, error) {
	if log == nil {
		log = zap.NewNop()
	}
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err == nil {
			f := &AMQPFeed{conn: conn, log: log}
			if err := f.setup(); err != nil {
				_ = conn.Close()
				return nil, err
			}
			return f, nil
		}
		log.Warn("row feed: failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dialing broker: %w", errors.Join(err, ctx.Err()))
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (f *AMQPFeed) setup() error {
	ch, err := f.conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	if err := ch.ExchangeDeclare(RowExchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("exchange declare: %w", err)
	}
	f.pub = ch
	return nil
}

func (f *AMQPFeed) PublishChange(ctx context.Context, table, kind string, row any) error {
	ev, err := newEvent("", kind, table, row)
	if err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pub == nil || f.pub.IsClosed() {
		if err := f.setup(); err != nil {
			return err
		}
	}
	return f.pub.PublishWithContext(ctx, RowExchange, table+"."+kind, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		Body:        body,
	})
}

func (f *AMQPFeed) SubscribeChanges(_ context.Context, table string, h Handler) (Subscription, error) {
	ch, err := f.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("channel open: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, table+".*", RowExchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue bind: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue consume: %w", err)
	}

	go func() {
		for d := range deliveries {
			var ev Event
			if err := json.Unmarshal(d.Body, &ev); err != nil {
				f.log.Warn("row feed: dropping malformed change", zap.String("table", table), zap.Error(err))
				continue
			}
			h(ev)
		}
	}()

	var once sync.Once
	return subscriptionFunc(func() error {
		var err error
		once.Do(func() {
			err = ch.Close()
		})
		return err
	}), nil
}

// Close shuts the broker connection down.
func (f *AMQPFeed) Close() error {
	return f.conn.Close()
}
