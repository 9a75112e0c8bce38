package sim

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bad-alloc-heavy-industries/mxusb/device/hal"
	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

// Handler receives the peripheral's two interrupt vectors.
type Handler interface {
	HandleBusEvent(events hal.BusEvent)
	HandleIOComplete()
}

// Bus delivers a controller's interrupts to a handler. A single
// dispatcher goroutine runs every handler invocation, so handlers never
// nest and never run concurrently with each other.
type Bus struct {
	ctrl     *Controller
	handler  Handler
	requests chan chan struct{}
	started  chan struct{}
	stopped  chan struct{}
}

// NewBus couples ctrl to handler. Nothing is delivered until Run is called.
func NewBus(ctrl *Controller, handler Handler) *Bus {
	return &Bus{
		ctrl:     ctrl,
		handler:  handler,
		requests: make(chan chan struct{}),
		started:  make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Controller returns the simulated peripheral.
func (b *Bus) Controller() *Controller {
	return b.ctrl
}

// Run dispatches interrupts until ctx is done. A Bus runs at most once.
func (b *Bus) Run(ctx context.Context) error {
	select {
	case <-b.started:
		return pkg.ErrAlreadyRunning
	default:
	}
	close(b.started)
	defer close(b.stopped)

	pkg.LogDebug(pkg.ComponentSim, "bus dispatcher started")
	for {
		select {
		case <-ctx.Done():
			pkg.LogDebug(pkg.ComponentSim, "bus dispatcher stopped")
			return ctx.Err()
		case done := <-b.requests:
			b.dispatch()
			close(done)
		}
	}
}

// dispatch runs each vector at most once, bus events first.
func (b *Bus) dispatch() {
	events, io := b.ctrl.pending()
	if events != 0 {
		b.handler.HandleBusEvent(events)
	}
	if io {
		b.handler.HandleIOComplete()
	}
}

// interrupt asks the dispatcher to service pending flags and waits until
// the handlers have returned.
func (b *Bus) interrupt(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case b.requests <- done:
	case <-b.stopped:
		return pkg.ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunScript runs the bus dispatcher alongside script and stops the
// dispatcher once script returns. It returns the script's error.
func RunScript(ctx context.Context, bus *Bus, script func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := bus.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer cancel()
		if err := script(gctx); err != nil {
			return fmt.Errorf("host script: %w", err)
		}
		return nil
	})
	return g.Wait()
}
