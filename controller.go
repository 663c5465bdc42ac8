package authstatus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	internalaudit "github.com/MrEthical07/authstatus/internal/audit"
	"go.opentelemetry.io/otel/trace"
)

// Controller tracks the current session and the protected data fetched with it.
//
// Build one with [New], call Start to subscribe and Close to tear down. A
// Controller cannot be restarted after Close. Close may be called from
// Navigator.NavigateTo as long as the provider's unsubscribe can run inside a
// notification callback.
type Controller struct {
	cfg       Config
	endpoint  string
	provider  SessionProvider
	navigator Navigator
	client    HTTPDoer
	logger    *slog.Logger
	metrics   *Metrics
	audit     *internalaudit.Dispatcher
	tracer    trace.Tracer

	mu          sync.Mutex
	state       State
	observed    bool
	gen         uint64
	started     bool
	closed      bool
	unsubscribe func()

	// latest holds at most one pending session for the fetch loop.
	latest chan sessionUpdate

	watchers      map[uint64]chan State
	nextWatcherID uint64

	cancel    context.CancelFunc
	stopWatch func() bool
	loopDone  chan struct{}
	fetchWG   sync.WaitGroup
}

type sessionUpdate struct {
	gen     uint64
	session Session
}

// Start subscribes to the session provider and starts the fetch loop.
//
// ctx bounds the controller's lifetime: when it is cancelled the controller
// closes itself as if Close had been called.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.loopDone = make(chan struct{})
	stopWatch := context.AfterFunc(ctx, func() {
		c.logger.Info("start context done, closing controller", "cause", context.Cause(ctx))
		c.Close()
	})
	c.stopWatch = stopWatch
	c.mu.Unlock()

	go c.run(runCtx)

	// The provider may deliver the first notification before Subscribe returns.
	unsubscribe, err := c.provider.Subscribe(runCtx, c.handleSession)
	if err != nil {
		stopWatch()
		cancel()
		<-c.loopDone
		c.logger.Error("session subscription failed", "error", err)
		return fmt.Errorf("%w: %w", ErrSubscribe, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		return ErrControllerClosed
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	c.logger.Debug("controller started", "endpoint", c.endpoint)
	return nil
}

// Close unsubscribes from the provider, cancels any pending fetch and waits for
// background work. No state changes are published after Close returns.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	stopWatch := c.stopWatch
	cancel := c.cancel
	loopDone := c.loopDone
	for id, ch := range c.watchers {
		delete(c.watchers, id)
		close(ch)
	}
	c.mu.Unlock()

	if stopWatch != nil {
		stopWatch()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	if loopDone != nil {
		<-loopDone
	}
	c.fetchWG.Wait()
	c.audit.Close()
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Watch returns a channel carrying state changes, starting with the current
// state. Delivery is latest-wins: a slow reader sees the newest state and may
// miss intermediate ones. The channel is closed by cancel or Close.
func (c *Controller) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextWatcherID
	c.nextWatcherID++
	c.watchers[id] = ch
	ch <- c.state.clone()
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if w, ok := c.watchers[id]; ok {
				delete(c.watchers, id)
				close(w)
			}
		})
	}
}

// publishLocked pushes the current state to every watcher. Caller holds c.mu.
func (c *Controller) publishLocked() {
	for _, ch := range c.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- c.state.clone()
	}
}

// Metrics returns the controller's metrics set.
func (c *Controller) Metrics() *Metrics {
	return c.metrics
}

// MetricsSnapshot copies the current counters and histograms.
func (c *Controller) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}
