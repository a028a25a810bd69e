// Package dispatch walks the provider chain for a request. Each provider is
// gated by its credential and quota, called once with a deadline, and its
// reply validated. When every provider is skipped or fails the local
// fallback engine answers instead, so Dispatch always produces an output.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pario-ai/backstop/pkg/config"
	"github.com/pario-ai/backstop/pkg/fallback"
	"github.com/pario-ai/backstop/pkg/logging"
	"github.com/pario-ai/backstop/pkg/models"
	"github.com/pario-ai/backstop/pkg/provider"
	"github.com/pario-ai/backstop/pkg/quota"
	"github.com/pario-ai/backstop/pkg/router"
)

// Outcome is the result of a dispatch.
type Outcome struct {
	Output    models.Output
	Source    models.Source
	Attempts  []models.Attempt
	// Remaining is set when a provider served the request.
	Remaining *models.Remaining
}

// CallerFactory builds a provider caller.
type CallerFactory func(cfg config.ProviderConfig, apiKey string) (provider.Caller, error)

// Credentials looks up provider keys.
type Credentials interface {
	Get(ctx context.Context, providerID string) (string, bool)
}

// Dispatcher runs the attempt loop.
type Dispatcher struct {
	router      *router.Router
	tracker     *quota.Tracker
	credentials Credentials
	engine      *fallback.Engine
	newCaller   CallerFactory
	timeout     time.Duration
	maxWait     time.Duration
	sleep       func(context.Context, time.Duration) error
	newID       func() string
	logger      *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout sets the per-call deadline for providers without their own.
func WithTimeout(d time.Duration) Option {
	return func(x *Dispatcher) { x.timeout = d }
}

// WithMaxWait sets the longest min-interval wait honoured before skipping.
func WithMaxWait(d time.Duration) Option {
	return func(x *Dispatcher) { x.maxWait = d }
}

// WithCallerFactory replaces provider.New.
func WithCallerFactory(f CallerFactory) Option {
	return func(x *Dispatcher) { x.newCaller = f }
}

// WithSleep replaces the context-aware sleep used for min-interval waits.
func WithSleep(f func(context.Context, time.Duration) error) Option {
	return func(x *Dispatcher) { x.sleep = f }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(x *Dispatcher) { x.logger = l }
}

// New creates a Dispatcher.
func New(r *router.Router, t *quota.Tracker, creds Credentials, engine *fallback.Engine, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		router:      r,
		tracker:     t,
		credentials: creds,
		engine:      engine,
		newCaller: func(cfg config.ProviderConfig, apiKey string) (provider.Caller, error) {
			return provider.New(cfg, apiKey)
		},
		timeout: 12 * time.Second,
		maxWait: 2 * time.Second,
		sleep:   sleepCtx,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.OrNop(d.logger)
	return d
}

// Dispatch returns an output for req from the first provider that can
// serve it, or from the fallback engine.
func (d *Dispatcher) Dispatch(ctx context.Context, req models.Request) Outcome {
	var attempts []models.Attempt

	routes, err := d.router.Resolve(req.Kind)
	if err != nil {
		d.logger.Debug("no provider chain", zap.String("kind", string(req.Kind)), zap.Error(err))
	}

	for _, rt := range routes {
		if ctx.Err() != nil {
			break
		}
		p := rt.Provider
		start := time.Now()

		apiKey, res, skip := d.admit(ctx, p)
		if skip != "" {
			attempts = append(attempts, models.Attempt{
				ProviderID: p.ID,
				Outcome:    models.OutcomeSkipped,
				Error:      models.ErrProviderUnavailable,
				Detail:     skip,
			})
			d.logger.Debug("provider skipped", zap.String("provider", p.ID), zap.String("reason", skip))
			continue
		}

		out, code, err := d.call(ctx, p, apiKey, req)
		latency := time.Since(start)
		if err != nil {
			res.Release()
			attempts = append(attempts, models.Attempt{
				ProviderID: p.ID,
				Outcome:    models.OutcomeFailed,
				Error:      code,
				Detail:     err.Error(),
				Latency:    latency,
			})
			d.logger.Warn("provider attempt failed",
				zap.String("provider", p.ID),
				zap.String("code", string(code)),
				zap.Duration("latency", latency),
				zap.Error(err))
			continue
		}

		attempts = append(attempts, models.Attempt{ProviderID: p.ID, Outcome: models.OutcomeServed, Latency: latency})
		rem, err := res.Commit(ctx)
		if err != nil {
			d.logger.Error("record usage", zap.String("provider", p.ID), zap.Error(err))
			rem = d.tracker.Remaining(ctx, p.ID)
		}
		d.logger.Info("provider served request",
			zap.String("provider", p.ID),
			zap.String("kind", string(req.Kind)),
			zap.Duration("latency", latency))
		return Outcome{Output: out, Source: models.ProviderSource(p.ID), Attempts: attempts, Remaining: &rem}
	}

	d.logger.Info("serving local fallback",
		zap.String("kind", string(req.Kind)),
		zap.Int("attempts", len(attempts)))
	return Outcome{Output: d.engine.Synthesize(req), Source: models.SourceFallback, Attempts: attempts}
}

// admit checks the credential for p and reserves a quota slot, sleeping
// through short min-interval waits. On success it returns the key and the
// reservation; otherwise a non-empty skip reason.
func (d *Dispatcher) admit(ctx context.Context, p config.ProviderConfig) (string, *quota.Reservation, string) {
	var apiKey string
	if p.NeedsCredential() {
		k, ok := d.credentials.Get(ctx, p.ID)
		if !ok {
			return "", nil, "no credential"
		}
		apiKey = k
	}

	dec, res := d.tracker.Reserve(ctx, p.ID, d.maxWait)
	if res == nil {
		if dec.Reason == quota.ReasonWaitTooLong {
			return "", nil, fmt.Sprintf("min interval wait %s exceeds %s", dec.Wait, d.maxWait)
		}
		return "", nil, dec.Reason
	}
	if dec.Wait > 0 {
		if err := d.sleep(ctx, dec.Wait); err != nil {
			res.Release()
			return "", nil, err.Error()
		}
	}
	return apiKey, res, ""
}

func (d *Dispatcher) call(ctx context.Context, p config.ProviderConfig, apiKey string, req models.Request) (models.Output, models.ErrorCode, error) {
	caller, err := d.newCaller(p, apiKey)
	if err != nil {
		return nil, models.ErrProviderUnavailable, err
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = d.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := caller.Complete(callCtx, req)
	if err != nil {
		if errors.Is(err, provider.ErrEmptyReply) {
			return nil, models.ErrProviderShape, err
		}
		return nil, models.ErrProviderTransport, err
	}

	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, models.ErrProviderShape, err
	}
	out, err := Repair(req, raw, d.newID)
	if err != nil {
		return nil, models.ErrProviderShape, err
	}
	return out, "", nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
