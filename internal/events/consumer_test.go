package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/poll"
)

// fakeReader serves queued messages, then blocks until the context ends.
type fakeReader struct {
	msgs   chan kafka.Message
	closed bool
}

func newFakeReader(values ...string) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(values))}
	for i, v := range values {
		r.msgs <- kafka.Message{Value: []byte(v), Offset: int64(i)}
	}
	return r
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type recordingClearer struct {
	mu       sync.Mutex
	sessions []string
}

func (c *recordingClearer) ClearCart(_ context.Context, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = append(c.sessions, sessionID)
}

func (c *recordingClearer) cleared() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sessions...)
}

func TestCheckoutConsumer_ClearsCartsOfCompletedCheckouts(t *testing.T) {
	reader := newFakeReader(
		`{"session_id":"sid-1","checkout_id":"c-1"}`,
		`not json`,
		`{"user_id":"u-1"}`,
		`{"session_id":"sid-2"}`,
	)
	clearer := &recordingClearer{}
	c := NewCheckoutConsumer(reader, clearer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	poll.WaitOn(t, func(poll.LogT) poll.Result {
		if len(clearer.cleared()) < 2 {
			return poll.Continue("waiting for carts to be cleared")
		}
		return poll.Success()
	}, poll.WithTimeout(2*time.Second))

	cancel()
	<-done
	assert.DeepEqual(t, clearer.cleared(), []string{"sid-1", "sid-2"})
	assert.NilError(t, c.Close())
	assert.Assert(t, reader.closed)
}

// flakyReader fails every read.
type flakyReader struct {
	reads atomic.Int32
}

func (r *flakyReader) ReadMessage(context.Context) (kafka.Message, error) {
	r.reads.Add(1)
	return kafka.Message{}, errors.New("broker unreachable")
}

func (r *flakyReader) Close() error { return nil }

func TestCheckoutConsumer_BacksOffOnReadErrors(t *testing.T) {
	reader := &flakyReader{}
	c := NewCheckoutConsumer(reader, &recordingClearer{}, nil)
	c.retryDelay = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 220*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	reads := reader.reads.Load()
	assert.Assert(t, reads >= 2, "reads: %d", reads)
	assert.Assert(t, reads <= 6, "reads: %d", reads)
}
