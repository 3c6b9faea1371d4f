package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ai-voice-transcription-service/internal/apperror"
	"ai-voice-transcription-service/internal/observability/metrics"
)

// Clock abstracts time so the poll loop can be driven by tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// emptyDocument is returned as Raw when no successful answer was seen.
var emptyDocument = json.RawMessage(`{}`)

// Poller runs the fixed-interval, deadline-bounded poll loop:
// WAITING -> SUCCESS on the first answer carrying text, WAITING -> TIMED_OUT
// once the deadline is reached. Non-success answers never abort the loop.
type Poller struct {
	Provider string
	Interval time.Duration
	Clock    Clock
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// Poll drives q until a terminal state. On cancellation it returns the last
// payload seen together with apperror.ErrCanceled.
func (p *Poller) Poll(ctx context.Context, q Querier, requestID string, deadline time.Time) (Result, error) {
	clock := p.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	m := p.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	log := p.Logger.With().Str("requestId", requestID).Logger()

	res := Result{Raw: emptyDocument, RequestID: requestID}
	attempts := 0

	for clock.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return res, canceled(err)
		}

		attempts++
		start := time.Now()
		// A hung query must not carry the loop past deadline + interval.
		qctx, cancel := context.WithTimeout(ctx, deadline.Sub(clock.Now())+p.Interval)
		out := q.Query(qctx, requestID)
		cancel()
		m.RecordPoll(p.Provider, out.Status.String(), time.Since(start).Seconds())

		if out.Responded {
			res.RawText = out.RawText
		}
		if out.Raw != nil {
			res.Raw = out.Raw
		}

		log.Debug().
			Int("attempt", attempts).
			Str("outcome", out.Status.String()).
			Int("status", out.StatusCode).
			Str("providerCode", out.ProviderCode).
			Str("providerMessage", out.ProviderMessage).
			Str("reason", out.Reason).
			Msg("Poll answered")

		if out.Status == Ready {
			text := out.Text
			res.Text = &text
			return res, nil
		}

		if err := ctx.Err(); err != nil {
			return res, canceled(err)
		}

		wait := p.Interval
		if remaining := deadline.Sub(clock.Now()); remaining < wait {
			wait = remaining
		}
		if wait <= 0 {
			break
		}

		select {
		case <-ctx.Done():
			return res, canceled(ctx.Err())
		case <-clock.After(wait):
		}
	}

	log.Info().Int("attempts", attempts).Msg("Poll deadline reached without transcript")
	res.TimedOut = true
	return res, nil
}

func canceled(cause error) error {
	return fmt.Errorf("%w: %v", apperror.ErrCanceled, cause)
}
