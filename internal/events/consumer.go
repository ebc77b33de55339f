package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

func NewKafkaReader(topic, groupID string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

// CartClearer empties the cart of a browser session.
type CartClearer interface {
	ClearCart(ctx context.Context, sessionID string)
}

// CheckoutConsumer empties carts once their checkout completed.
type CheckoutConsumer struct {
	reader     Reader
	clearer    CartClearer
	log        *zap.Logger
	retryDelay time.Duration
}

func NewCheckoutConsumer(r Reader, c CartClearer, log *zap.Logger) *CheckoutConsumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckoutConsumer{reader: r, clearer: c, log: log, retryDelay: time.Second}
}

func (c *CheckoutConsumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.handleNext(ctx)
	}
}

func (c *CheckoutConsumer) handleNext(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		c.log.Error("error reading checkout message", zap.Error(err))
		// back off so an unreachable broker does not spin the loop
		select {
		case <-ctx.Done():
		case <-time.After(c.retryDelay):
		}
		return
	}

	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(m.Value, &payload); err != nil {
		c.log.Warn("error parsing checkout message", zap.Error(err))
		return
	}
	if payload.SessionID == "" {
		c.log.Warn("checkout message without session_id", zap.Int64("offset", m.Offset))
		return
	}

	c.clearer.ClearCart(ctx, payload.SessionID)
	c.log.Info("cart cleared after checkout", zap.String("session_id", payload.SessionID))
}

func (c *CheckoutConsumer) Close() error {
	return c.reader.Close()
}
