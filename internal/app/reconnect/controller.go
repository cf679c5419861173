package reconnect

import (
	"context"
	"errors"
	"livon-client/internal/app/connection"
	"livon-client/internal/app/registry"
	"livon-client/internal/core/contracts"
	"livon-client/internal/core/domain"
	"livon-client/pkg/logging"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Controller keeps a session connected. TransportLost schedules a retry;
// AuthRejected is terminal and handed to the auth collaborator.
type Controller struct {
	log      *slog.Logger
	manager  *connection.Manager
	registry *registry.Registry
	tokens   contracts.TokenSource
	roomID   string
	opts     Options

	mu           sync.Mutex
	ctx          context.Context
	cancel       context.CancelFunc
	backoff      backoff.BackOff
	attempts     int
	timer        *time.Timer
	stopped      bool
	onAuthFailed func(error)
	onGiveUp     func(error)
}

func NewController(
	log *slog.Logger,
	manager *connection.Manager,
	reg *registry.Registry,
	tokens contracts.TokenSource,
	roomID string,
	opts Options,
) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		log:      logging.OrDiscard(log).With(logging.Room(roomID)),
		manager:  manager,
		registry: reg,
		tokens:   tokens,
		roomID:   roomID,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		backoff:  opts.NewBackOff(),
	}
	manager.OnHandshake(c.resubscribe)
	manager.Watch(c.handle)
	return c
}

// OnAuthFailed registers fn for the terminal credential rejection.
func (c *Controller) OnAuthFailed(fn func(error)) {
	c.mu.Lock()
	c.onAuthFailed = fn
	c.mu.Unlock()
}

// OnGiveUp registers fn for when MaxAttempts is exhausted.
func (c *Controller) OnGiveUp(fn func(error)) {
	c.mu.Lock()
	c.onGiveUp = fn
	c.mu.Unlock()
}

// Attempts returns the number of retries since the last successful connect.
func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Stop cancels any pending retry. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.cancel()
}

// resubscribe runs inside the handshake, before the state becomes Connected.
func (c *Controller) resubscribe(_ context.Context, conn contracts.Conn) error {
	_, err := c.registry.SubscribeAll(conn, c.roomID)
	return err
}

func (c *Controller) handle(evt domain.StateEvent) {
	switch evt.New {
	case domain.StateConnected:
		c.mu.Lock()
		if c.attempts > 0 {
			c.log.Info("reconnect - handle - reconnected", logging.Attempt(c.attempts))
		}
		c.attempts = 0
		c.backoff.Reset()
		c.mu.Unlock()
	case domain.StateFailed:
		if errors.Is(evt.Cause, domain.ErrAuthRejected) {
			c.authFailed(evt.Cause)
			return
		}
		c.schedule(evt.Cause)
	}
}

func (c *Controller) authFailed(cause error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	fn := c.onAuthFailed
	c.mu.Unlock()

	c.log.Warn("reconnect - handle - credential rejected, not retrying", logging.Err(cause))
	c.tokens.OnAuthRejected(c.ctx, cause)
	if fn != nil {
		fn(cause)
	}
}

func (c *Controller) schedule(cause error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	if c.opts.MaxAttempts > 0 && c.attempts >= c.opts.MaxAttempts {
		fn := c.onGiveUp
		attempts := c.attempts
		c.mu.Unlock()
		c.log.Error("reconnect - schedule - giving up", logging.Attempt(attempts), logging.Err(cause))
		if err := c.manager.Disconnect(); err != nil {
			c.log.Warn("reconnect - schedule - disconnect failed", logging.Err(err))
		}
		if fn != nil {
			fn(cause)
		}
		return
	}
	delay := c.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = c.opts.Delay
	}
	if !c.manager.BeginReconnect() {
		c.mu.Unlock()
		return
	}
	c.attempts++
	attempt := c.attempts
	c.timer = time.AfterFunc(delay, func() { c.attempt(attempt) })
	c.mu.Unlock()

	c.log.Info("reconnect - schedule - retry scheduled",
		logging.Attempt(attempt), "delay", delay.String(), logging.Err(cause))
}

func (c *Controller) attempt(n int) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	ctx := c.ctx
	c.mu.Unlock()

	if err := c.manager.Reconnect(ctx); err != nil {
		// the resulting Failed transition schedules the next attempt
		c.log.Warn("reconnect - attempt - failed", logging.Attempt(n), logging.Err(err))
	}
}
