// Package orchestrator is the single entry point front-ends call. It
// validates a request, answers from the cache when it can, otherwise runs
// the provider chain, and always returns a complete result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/backstop/pkg/cache"
	"github.com/pario-ai/backstop/pkg/config"
	"github.com/pario-ai/backstop/pkg/dispatch"
	"github.com/pario-ai/backstop/pkg/fallback"
	"github.com/pario-ai/backstop/pkg/kv"
	"github.com/pario-ai/backstop/pkg/logging"
	"github.com/pario-ai/backstop/pkg/models"
	"github.com/pario-ai/backstop/pkg/quota"
	"github.com/pario-ai/backstop/pkg/router"
	"github.com/pario-ai/backstop/pkg/vault"
)

// ErrUnknownProvider is returned for provider ids not in the config.
var ErrUnknownProvider = errors.New("unknown provider")

// Options adjust a single Request call.
type Options struct {
	// NoCache stores nothing in the cache for this call.
	NoCache bool `json:"no_cache,omitempty"`
	// TTL overrides the cache default for this result.
	TTL time.Duration `json:"ttl,omitempty"`
}

// subscriberBuffer is the event backlog kept per subscriber. Events beyond
// it are dropped for that subscriber.
const subscriberBuffer = 16

// Orchestrator composes the vault, quota tracker, cache and dispatcher.
type Orchestrator struct {
	cfg        *config.Config
	router     *router.Router
	tracker    *quota.Tracker
	vault      *vault.Vault
	cache      *cache.Cache[models.Output]
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	subs    map[int]chan models.StatusEvent
	nextSub int
}

type settings struct {
	logger       *zap.Logger
	now          func() time.Time
	dispatchOpts []dispatch.Option
}

// Option configures an Orchestrator.
type Option func(*settings)

// WithLogger sets the logger shared by every component.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithClock replaces time.Now for quota windows and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithDispatchOptions passes options through to the dispatcher.
func WithDispatchOptions(opts ...dispatch.Option) Option {
	return func(s *settings) { s.dispatchOpts = append(s.dispatchOpts, opts...) }
}

// New wires an Orchestrator over store. Provider api_key values from the
// config are validated and stored in the vault when it holds no key for
// that provider yet.
func New(ctx context.Context, cfg *config.Config, store kv.Store, opts ...Option) (*Orchestrator, error) {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	logger := logging.OrNop(s.logger)

	limits := make(map[string]quota.Limits, len(cfg.Providers))
	for _, p := range cfg.Providers {
		limits[p.ID] = quota.Limits{Daily: p.DailyLimit, Monthly: p.MonthlyLimit, MinInterval: p.MinInterval}
	}

	o := &Orchestrator{
		cfg:     cfg,
		router:  router.New(cfg),
		tracker: quota.New(store, limits, quota.WithClock(s.now), quota.WithLogger(logger)),
		vault:   vault.New(store, logger),
		cache:   cache.New[models.Output](cfg.Cache.TTL, cfg.Cache.Capacity),
		logger:  logger,
		now:     s.now,
		subs:    make(map[int]chan models.StatusEvent),
	}
	o.cache.SetClock(s.now)

	dopts := []dispatch.Option{
		dispatch.WithTimeout(cfg.Dispatch.Timeout),
		dispatch.WithMaxWait(cfg.Dispatch.MaxWait),
		dispatch.WithLogger(logger),
	}
	o.dispatcher = dispatch.New(o.router, o.tracker, o.vault, fallback.New(), append(dopts, s.dispatchOpts...)...)

	for _, p := range cfg.Providers {
		if p.APIKey == "" {
			continue
		}
		if err := vault.Validate(p.Vendor, strings.TrimSpace(p.APIKey)); err != nil {
			return nil, fmt.Errorf("seed credential for %s: %w", p.ID, err)
		}
		// A key stored at runtime wins over the config file.
		if o.vault.Has(ctx, p.ID) {
			continue
		}
		if err := o.vault.Put(ctx, p.ID, p.Vendor, p.APIKey); err != nil {
			return nil, fmt.Errorf("seed credential for %s: %w", p.ID, err)
		}
	}
	return o, nil
}

// Request produces a result for req. Only invalid input yields
// Success=false; provider trouble is absorbed by the fallback engine.
func (o *Orchestrator) Request(ctx context.Context, req models.Request, opts Options) models.Result {
	start := o.now()
	elapsed := func() int64 { return o.now().Sub(start).Milliseconds() }

	if err := ValidateRequest(req); err != nil {
		o.logger.Debug("rejected request", zap.Error(err))
		return models.Result{Error: models.ErrInvalidInput, Detail: err.Error(), LatencyMs: elapsed()}
	}

	key := cache.Fingerprint(req)
	if out, ok := o.cache.Get(key); ok {
		o.logger.Debug("cache hit", zap.String("kind", string(req.Kind)), zap.String("fingerprint", key[:12]))
		return models.Result{Success: true, Data: out.Clone(), Source: models.SourceCache, LatencyMs: elapsed()}
	}

	res := o.dispatcher.Dispatch(ctx, req)
	if !opts.NoCache {
		o.cache.PutTTL(key, res.Output.Clone(), opts.TTL)
	}

	if res.Remaining != nil {
		pid := res.Source.ProviderID()
		o.publish(ctx, models.StatusEvent{Type: models.EventQuotaRecorded, ProviderID: pid, Remaining: *res.Remaining})
	}

	return models.Result{
		Success:   true,
		Data:      res.Output,
		Source:    res.Source,
		LatencyMs: elapsed(),
		Attempts:  res.Attempts,
	}
}

// RemainingQuota reports requests left for providerID.
func (o *Orchestrator) RemainingQuota(ctx context.Context, providerID string) (models.Remaining, error) {
	if _, ok := o.cfg.Provider(providerID); !ok {
		return models.Remaining{}, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	return o.tracker.Remaining(ctx, providerID), nil
}

// Usage returns the usage record for providerID in the current windows.
func (o *Orchestrator) Usage(ctx context.Context, providerID string) (models.UsageRecord, error) {
	if _, ok := o.cfg.Provider(providerID); !ok {
		return models.UsageRecord{}, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	return o.tracker.Record(ctx, providerID), nil
}

// CurrentMode returns the tier of the first provider, in priority order,
// that has a usable credential and quota left.
func (o *Orchestrator) CurrentMode(ctx context.Context) models.Mode {
	for _, p := range o.router.Providers() {
		if p.NeedsCredential() && !o.vault.Has(ctx, p.ID) {
			continue
		}
		if o.tracker.Remaining(ctx, p.ID).Exhausted() {
			continue
		}
		return models.Mode(p.EffectiveTier())
	}
	return models.ModeOffline
}

// SetCredential validates and stores a key for providerID.
func (o *Orchestrator) SetCredential(ctx context.Context, providerID, rawKey string) error {
	p, ok := o.cfg.Provider(providerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	if err := o.vault.Put(ctx, providerID, p.Vendor, rawKey); err != nil {
		return err
	}
	o.publish(ctx, models.StatusEvent{
		Type:       models.EventCredentialStored,
		ProviderID: providerID,
		Remaining:  o.tracker.Remaining(ctx, providerID),
	})
	return nil
}

// MaskedCredential returns the masked key for providerID and whether one
// is stored.
func (o *Orchestrator) MaskedCredential(ctx context.Context, providerID string) (string, bool) {
	raw, ok := o.vault.Get(ctx, providerID)
	if !ok {
		return "", false
	}
	return vault.Mask(raw), true
}

// ClearCredentials removes every stored key. Usage counters are kept.
func (o *Orchestrator) ClearCredentials(ctx context.Context) error {
	if err := o.vault.ClearAll(ctx); err != nil {
		return err
	}
	o.publish(ctx, models.StatusEvent{Type: models.EventCredentialsCleared})
	return nil
}

// CacheStats reports response cache counters.
func (o *Orchestrator) CacheStats() models.CacheStats {
	return o.cache.Stats()
}

// Providers returns the configured providers in priority order.
func (o *Orchestrator) Providers() []config.ProviderConfig {
	return o.router.Providers()
}

// Subscribe returns a channel of status events and a func that ends the
// subscription and closes the channel. A subscriber that falls behind
// misses events rather than blocking requests.
func (o *Orchestrator) Subscribe() (<-chan models.StatusEvent, func()) {
	ch := make(chan models.StatusEvent, subscriberBuffer)

	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (o *Orchestrator) publish(ctx context.Context, ev models.StatusEvent) {
	ev.Mode = o.CurrentMode(ctx)
	ev.At = o.now()

	o.mu.Lock()
	defer o.mu.Unlock()
	for id, ch := range o.subs {
		select {
		case ch <- ev:
		default:
			o.logger.Debug("dropping status event for slow subscriber", zap.Int("subscriber", id))
		}
	}
}
