package events

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/fjod/tranex/internal/cart"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// CartChanged is published whenever a session's cart item count changes.
type CartChanged struct {
	SessionID string    `json:"session_id"`
	ItemCount int       `json:"item_count"`
	At        time.Time `json:"at"`
}

// Writer is the subset of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
}

// Publisher queues cart changes and writes them from Run, so cart
// operations never wait on the broker. When the queue is full events are
// dropped and counted.
type Publisher struct {
	writer       Writer
	queue        chan CartChanged
	log          *zap.Logger
	now          func() time.Time
	flushTimeout time.Duration
	dropped      atomic.Int64
}

func NewPublisher(w Writer, buffer int, log *zap.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		writer:       w,
		queue:        make(chan CartChanged, buffer),
		log:          log,
		now:          time.Now,
		flushTimeout: 5 * time.Second,
	}
}

// Subscriber returns a cart subscriber publishing changes for sessionID.
// It is meant for cart.Registry.OnNewStore.
func (p *Publisher) Subscriber(sessionID string) cart.Subscriber {
	return func(count int) {
		p.Enqueue(CartChanged{SessionID: sessionID, ItemCount: count, At: p.now()})
	}
}

// Enqueue never blocks.
func (p *Publisher) Enqueue(ev CartChanged) bool {
	select {
	case p.queue <- ev:
		return true
	default:
		p.dropped.Add(1)
		p.log.Warn("cart event queue full, dropping event", zap.String("session_id", ev.SessionID))
		return false
	}
}

func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Run writes queued events until ctx is cancelled, then flushes what is
// left in the queue within the flush timeout.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case ev := <-p.queue:
			p.publish(ctx, ev)
		case <-ctx.Done():
			p.flush()
			return
		}
	}
}

func (p *Publisher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), p.flushTimeout)
	defer cancel()
	for {
		select {
		case ev := <-p.queue:
			p.publish(ctx, ev)
		default:
			return
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ev CartChanged) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("failed to marshal cart event", zap.Error(err))
		return
	}
	msg := kafka.Message{
		Key:   []byte(ev.SessionID), // session id for ordering
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("CartChanged")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("failed to publish cart event",
			zap.String("session_id", ev.SessionID), zap.Error(err))
	}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
