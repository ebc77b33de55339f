package main

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// background runs the long-lived workers (event publisher, checkout consumer,
// cart janitor) on a context of their own, so they outlive the signal that
// starts shutdown.
type background struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newBackground() *background {
	ctx, cancel := context.WithCancel(context.Background())
	return &background{ctx: ctx, cancel: cancel}
}

func (b *background) Go(fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(b.ctx)
	}()
}

// Stop cancels the workers and waits for them to return.
func (b *background) Stop() {
	b.cancel()
	b.wg.Wait()
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown drains the server before stopping the workers: requests still in
// flight keep publishing cart events, and the publisher flushes them once it
// is stopped.
func shutdown(ctx context.Context, srv shutdowner, bg *background, log *zap.Logger) {
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	bg.Stop()
}
