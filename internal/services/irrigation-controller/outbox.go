package irrigation_controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// BreakerSettings tunes the circuit breaker in front of the remote channel.
type BreakerSettings struct {
	Failures uint32        // consecutive failures before opening
	Open     time.Duration // time spent open before a half-open probe
	Interval time.Duration // closed-state counter reset period, 0 never resets
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{Failures: 3, Open: 30 * time.Second}
}

// Outbox sends every outbound message with a per-send timeout. Messages to the owner
// go through a circuit breaker; replies to anyone else are sent directly and never
// count against it. It implements Notifier and Responder.
type Outbox struct {
	remote  RemoteChannel
	owner   string
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
	metrics *Metrics
}

func NewOutbox(remote RemoteChannel, owner string, timeout time.Duration, bs BreakerSettings, metrics *Metrics) *Outbox {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if bs.Failures == 0 {
		bs.Failures = 1
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "remote-channel",
		Interval: bs.Interval,
		Timeout:  bs.Open,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= bs.Failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return &Outbox{remote: remote, owner: owner, timeout: timeout, cb: cb, metrics: metrics}
}

// Notify sends text to the authorized user.
func (o *Outbox) Notify(ctx context.Context, text string) error {
	return o.Reply(ctx, o.owner, text)
}

func (o *Outbox) Reply(ctx context.Context, to, text string) error {
	return o.send(ctx, to, func(sctx context.Context) error {
		return o.remote.SendNotification(sctx, to, text)
	})
}

func (o *Outbox) Menu(ctx context.Context, to, text string, options []string) error {
	return o.send(ctx, to, func(sctx context.Context) error {
		return o.remote.SendMenu(sctx, to, text, options)
	})
}

// Tripped is true while the breaker refuses sends.
func (o *Outbox) Tripped() bool { return o.cb.State() == gobreaker.StateOpen }

func (o *Outbox) send(ctx context.Context, to string, fn func(context.Context) error) error {
	if !o.remote.Connected() {
		o.metrics.Sends.WithLabelValues("link_down").Inc()
		return ErrLinkDown
	}
	timed := func() error {
		sctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		return fn(sctx)
	}

	var err error
	if to == o.owner {
		_, err = o.cb.Execute(func() (interface{}, error) { return nil, timed() })
	} else {
		err = timed()
	}
	switch {
	case err == nil:
		o.metrics.Sends.WithLabelValues("ok").Inc()
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		o.metrics.Sends.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %w", ErrLinkDown, ErrBreakerOpen)
	default:
		o.metrics.Sends.WithLabelValues("failed").Inc()
		return fmt.Errorf("send: %w", err)
	}
}
