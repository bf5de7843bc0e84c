package irrigation_controller

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/gardenbot/internal/clock"
)

// NewReconnectBackOff never gives up: the link is retried for as long as the process runs.
func NewReconnectBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 5 * time.Minute
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// linkStableAfter is how long a restored link must stay up before a new outage starts
// again from an immediate attempt.
const linkStableAfter = time.Minute

// Link tracks the health of the remote channel and schedules reconnect attempts.
// Tick makes at most one attempt, bounded by the connect timeout, so the loop keeps
// checking expiry while the link is down.
type Link struct {
	remote  RemoteChannel
	bo      *backoff.ExponentialBackOff
	timeout time.Duration
	metrics *Metrics

	down        bool
	downSince   clock.Millis
	lastAttempt clock.Millis
	wait        clock.Millis
	attempts    int

	restored   bool
	restoredAt clock.Millis
	stable     clock.Millis
}

func NewLink(remote RemoteChannel, bo *backoff.ExponentialBackOff, connectTimeout time.Duration, metrics *Metrics) *Link {
	if bo == nil {
		bo = NewReconnectBackOff()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Link{
		remote:  remote,
		bo:      bo,
		timeout: connectTimeout,
		metrics: metrics,
		stable:  clock.FromDuration(linkStableAfter),
	}
}

// Up is false from MarkDown until a reconnect succeeds.
func (l *Link) Up() bool { return !l.down }

// Attempts counts reconnect attempts since the link went down.
func (l *Link) Attempts() int { return l.attempts }

// MarkDown schedules an immediate reconnect attempt. Repeated calls while down
// keep the current schedule. A link that drops again soon after a restore keeps
// backing off instead of retrying at once.
func (l *Link) MarkDown(now clock.Millis) {
	if l.down {
		return
	}
	l.down = true
	l.downSince = now
	l.lastAttempt = now
	l.attempts = 0
	if l.restored && clock.Since(now, l.restoredAt) < l.stable {
		next := l.bo.NextBackOff()
		if next == backoff.Stop {
			next = l.bo.MaxInterval
		}
		l.wait = clock.FromDuration(next)
		log.Warn().Dur("retry_in", next).Msg("remote link marked down again shortly after restore")
		return
	}
	l.wait = 0
	l.bo.Reset()
	log.Warn().Msg("remote link marked down")
}

// Tick advances the reconnect state machine by at most one attempt.
func (l *Link) Tick(ctx context.Context, now clock.Millis) {
	if !l.down {
		if l.remote.Connected() {
			return
		}
		l.MarkDown(now)
	}
	if !clock.Due(now, l.lastAttempt, l.wait) {
		return
	}

	l.lastAttempt = now
	l.attempts++
	actx, cancel := context.WithTimeout(ctx, l.timeout)
	err := l.remote.Reconnect(actx)
	cancel()

	if err == nil {
		l.metrics.Reconnects.WithLabelValues("ok").Inc()
		log.Info().
			Int("attempts", l.attempts).
			Uint32("down_ms", uint32(clock.Since(now, l.downSince))).
			Msg("remote link restored")
		l.down = false
		l.restored = true
		l.restoredAt = now
		return
	}

	l.metrics.Reconnects.WithLabelValues("failed").Inc()
	next := l.bo.NextBackOff()
	if next == backoff.Stop {
		next = l.bo.MaxInterval
	}
	l.wait = clock.FromDuration(next)
	log.Warn().Err(err).Int("attempt", l.attempts).Dur("retry_in", next).Msg("reconnect failed")
}
