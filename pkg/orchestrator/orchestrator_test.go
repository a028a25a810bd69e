package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pario-ai/backstop/pkg/config"
	"github.com/pario-ai/backstop/pkg/dispatch"
	"github.com/pario-ai/backstop/pkg/kv/memory"
	"github.com/pario-ai/backstop/pkg/models"
	"github.com/pario-ai/backstop/pkg/provider"
	"github.com/pario-ai/backstop/pkg/vault"
)

const openaiKey = "sk-abcdefghijklmnopqrstuvwxyz012345"

type callerFunc func(ctx context.Context, req models.Request) (string, error)

func (f callerFunc) Complete(ctx context.Context, req models.Request) (string, error) {
	return f(ctx, req)
}

// countingFactory answers every request with a small recipe and counts
// calls per provider.
type countingFactory struct {
	mu    sync.Mutex
	calls map[string]int
}

func (f *countingFactory) new(cfg config.ProviderConfig, _ string) (provider.Caller, error) {
	return callerFunc(func(_ context.Context, req models.Request) (string, error) {
		f.mu.Lock()
		if f.calls == nil {
			f.calls = make(map[string]int)
		}
		f.calls[cfg.ID]++
		f.mu.Unlock()
		return `{"title":"` + strings.Join(req.Items, " & ") + ` from ` + cfg.ID + `","instructions":["Cook it"]}`, nil
	}), nil
}

func (f *countingFactory) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testConfig(providers ...config.ProviderConfig) *config.Config {
	cfg := config.Default()
	cfg.Providers = providers
	return cfg
}

func paid(id string, priority, daily int) config.ProviderConfig {
	return config.ProviderConfig{
		ID: id, Vendor: "openai", Tier: config.TierCustom, Priority: priority,
		DailyLimit: daily, MonthlyLimit: -1, ResponseShape: config.ShapeChat,
	}
}

func newOrchestrator(t *testing.T, cfg *config.Config, f *countingFactory, clk *testClock) *Orchestrator {
	t.Helper()
	if clk == nil {
		clk = &testClock{t: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)}
	}
	o, err := New(context.Background(), cfg, memory.New(),
		WithLogger(zaptest.NewLogger(t)),
		WithClock(clk.now),
		WithDispatchOptions(dispatch.WithCallerFactory(f.new)))
	require.NoError(t, err)
	return o
}

var chickenRice = models.Request{Kind: models.KindRecipe, Items: []string{"chicken", "rice"}}

func TestInvalidInput(t *testing.T) {
	f := &countingFactory{}
	o := newOrchestrator(t, testConfig(paid("x", 1, -1)), f, nil)
	require.NoError(t, o.SetCredential(context.Background(), "x", openaiKey))

	tooMany := make([]string, 51)
	for i := range tooMany {
		tooMany[i] = "item"
	}
	bad := []models.Request{
		{},
		{Kind: "poem", Items: []string{"a"}},
		{Kind: models.KindRecipe},
		{Kind: models.KindRecipe, Items: []string{"  "}},
		{Kind: models.KindPalette},
		{Kind: models.KindCaption, Prompt: "   "},
		{Kind: models.KindRecipe, Items: tooMany},
		{Kind: models.KindCaption, Prompt: strings.Repeat("a", 4001)},
	}
	for i, req := range bad {
		res := o.Request(context.Background(), req, Options{})
		assert.False(t, res.Success, "request %d", i)
		assert.Equal(t, models.ErrInvalidInput, res.Error, "request %d", i)
		assert.Nil(t, res.Data)
		assert.NotEmpty(t, res.Detail)
	}

	assert.Equal(t, 0, f.count("x"))
	assert.Equal(t, models.CacheStats{}, o.CacheStats(), "validation happens before any cache access")
}

func TestExhaustionFallsBackWithoutNetwork(t *testing.T) {
	f := &countingFactory{}
	o := newOrchestrator(t, testConfig(paid("a", 1, 0), paid("b", 2, 0)), f, nil)
	ctx := context.Background()
	require.NoError(t, o.SetCredential(ctx, "a", openaiKey))
	require.NoError(t, o.SetCredential(ctx, "b", openaiKey))

	inputs := []models.Request{
		chickenRice,
		{Kind: models.KindPalette, Items: []string{"calm"}},
		{Kind: models.KindCaption, Prompt: "first day at the new job"},
	}
	for _, req := range inputs {
		start := time.Now()
		res := o.Request(ctx, req, Options{NoCache: true})
		assert.True(t, res.Success)
		assert.Equal(t, models.SourceFallback, res.Source)
		assert.NotNil(t, res.Data)
		assert.Less(t, time.Since(start), time.Second)
	}
	assert.Equal(t, 0, f.count("a")+f.count("b"))
}

func TestCacheIdempotence(t *testing.T) {
	f := &countingFactory{}
	o := newOrchestrator(t, testConfig(paid("x", 1, -1)), f, nil)
	ctx := context.Background()
	require.NoError(t, o.SetCredential(ctx, "x", openaiKey))

	first := o.Request(ctx, chickenRice, Options{})
	require.True(t, first.Success)
	assert.Equal(t, models.ProviderSource("x"), first.Source)

	// Same meaning, different spelling and volatile fields.
	again := models.Request{Kind: models.KindRecipe, Items: []string{"Rice", "chicken"}, RequestID: "r-2", Timestamp: time.Now()}
	second := o.Request(ctx, again, Options{})
	assert.Equal(t, models.SourceCache, second.Source)
	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, 1, f.count("x"))
	assert.Equal(t, int64(1), o.CacheStats().Hits)
}

func TestNoCacheSkipsStore(t *testing.T) {
	f := &countingFactory{}
	o := newOrchestrator(t, testConfig(paid("x", 1, -1)), f, nil)
	ctx := context.Background()
	require.NoError(t, o.SetCredential(ctx, "x", openaiKey))

	o.Request(ctx, chickenRice, Options{NoCache: true})
	res := o.Request(ctx, chickenRice, Options{NoCache: true})
	assert.Equal(t, models.ProviderSource("x"), res.Source)
	assert.Equal(t, 2, f.count("x"))
}

func TestTTLOverride(t *testing.T) {
	f := &countingFactory{}
	clk := &testClock{t: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)}
	o := newOrchestrator(t, testConfig(paid("x", 1, -1)), f, clk)
	ctx := context.Background()
	require.NoError(t, o.SetCredential(ctx, "x", openaiKey))

	o.Request(ctx, chickenRice, Options{TTL: time.Minute})
	clk.advance(2 * time.Minute)

	res := o.Request(ctx, chickenRice, Options{})
	assert.Equal(t, models.ProviderSource("x"), res.Source, "entry should have expired")
	assert.Equal(t, 2, f.count("x"))
}

func TestFallbackResultsAreCached(t *testing.T) {
	f := &countingFactory{}
	o := newOrchestrator(t, testConfig(), f, nil)
	ctx := context.Background()

	first := o.Request(ctx, chickenRice, Options{})
	second := o.Request(ctx, chickenRice, Options{})
	assert.Equal(t, models.SourceFallback, first.Source)
	assert.Equal(t, models.SourceCache, second.Source)
	assert.Equal(t, first.Data.Identifier(), second.Data.Identifier())
}

func TestEndToEndSingleProvider(t *testing.T) {
	f := &countingFactory{}
	o := newOrchestrator(t, testConfig(paid("x", 1, 1)), f, nil)
	ctx := context.Background()
	require.NoError(t, o.SetCredential(ctx, "x", openaiKey))

	first := o.Request(ctx, chickenRice, Options{})
	require.True(t, first.Success)
	assert.Equal(t, models.ProviderSource("x"), first.Source)

	usage, err := o.Usage(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.DailyCount)

	second := o.Request(ctx, models.Request{Kind: models.KindRecipe, Items: []string{"beef", "noodles"}}, Options{})
	require.True(t, second.Success)
	assert.Equal(t, models.SourceFallback, second.Source)

	r, ok := second.Data.(models.Recipe)
	require.True(t, ok)
	assert.NotEmpty(t, r.ID)
	assert.NotEmpty(t, r.Title)
	assert.NotEmpty(t, r.Instructions)
	assert.NotEmpty(t, r.Ingredients)
	require.Len(t, second.Attempts, 1)
	assert.Equal(t, models.OutcomeSkipped, second.Attempts[0].Outcome)

	rem, err := o.RemainingQuota(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 0, rem.Daily)
	assert.Equal(t, 1, f.count("x"))
}

func TestQuotaSurvivesRestart(t *testing.T) {
	store := memory.New()
	cfg := testConfig(paid("x", 1, 1))
	f := &countingFactory{}
	ctx := context.Background()

	o1, err := New(ctx, cfg, store, WithDispatchOptions(dispatch.WithCallerFactory(f.new)))
	require.NoError(t, err)
	require.NoError(t, o1.SetCredential(ctx, "x", openaiKey))
	require.Equal(t, models.ProviderSource("x"), o1.Request(ctx, chickenRice, Options{}).Source)

	o2, err := New(ctx, cfg, store, WithDispatchOptions(dispatch.WithCallerFactory(f.new)))
	require.NoError(t, err)
	res := o2.Request(ctx, chickenRice, Options{})
	assert.Equal(t, models.SourceFallback, res.Source, "cache is per process, quota is persisted")
}

func TestCurrentMode(t *testing.T) {
	f := &countingFactory{}
	free := paid("free", 1, 1)
	free.Tier = config.TierFree
	mock := config.ProviderConfig{ID: "mock", Priority: 5, DailyLimit: 1, MonthlyLimit: -1, ResponseShape: config.ShapeMock}
	o := newOrchestrator(t, testConfig(free, mock), f, nil)
	ctx := context.Background()

	assert.Equal(t, models.ModeMock, o.CurrentMode(ctx), "mock needs no credential")

	require.NoError(t, o.SetCredential(ctx, "free", openaiKey))
	assert.Equal(t, models.ModeFree, o.CurrentMode(ctx))

	o.Request(ctx, chickenRice, Options{})
	assert.Equal(t, models.ModeMock, o.CurrentMode(ctx), "free quota spent")

	o.Request(ctx, models.Request{Kind: models.KindRecipe, Items: []string{"tofu"}}, Options{})
	assert.Equal(t, 1, f.count("mock"))
	assert.Equal(t, models.ModeOffline, o.CurrentMode(ctx))
}

func TestSubscribe(t *testing.T) {
	f := &countingFactory{}
	o := newOrchestrator(t, testConfig(paid("x", 1, 5)), f, nil)
	ctx := context.Background()

	events, cancel := o.Subscribe()

	require.NoError(t, o.SetCredential(ctx, "x", openaiKey))
	ev := <-events
	assert.Equal(t, models.EventCredentialStored, ev.Type)
	assert.Equal(t, "x", ev.ProviderID)
	assert.Equal(t, models.ModeCustom, ev.Mode)

	o.Request(ctx, chickenRice, Options{})
	ev = <-events
	assert.Equal(t, models.EventQuotaRecorded, ev.Type)
	assert.Equal(t, 4, ev.Remaining.Daily)

	require.NoError(t, o.ClearCredentials(ctx))
	ev = <-events
	assert.Equal(t, models.EventCredentialsCleared, ev.Type)
	assert.Equal(t, models.ModeOffline, ev.Mode)

	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open)

	// Publishing with no subscribers must not block.
	require.NoError(t, o.SetCredential(ctx, "x", openaiKey))
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	o := newOrchestrator(t, testConfig(paid("x", 1, -1)), &countingFactory{}, nil)
	ctx := context.Background()
	_, cancel := o.Subscribe()
	defer cancel()

	var done atomic.Bool
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			_ = o.SetCredential(ctx, "x", openaiKey)
		}
		done.Store(true)
	}()
	assert.Eventually(t, done.Load, 2*time.Second, 10*time.Millisecond)
}

func TestCredentials(t *testing.T) {
	o := newOrchestrator(t, testConfig(paid("x", 1, -1)), &countingFactory{}, nil)
	ctx := context.Background()

	assert.ErrorIs(t, o.SetCredential(ctx, "x", "sk-your_key_here_please_0000"), vault.ErrPlaceholderKey)
	assert.ErrorIs(t, o.SetCredential(ctx, "x", "nope"), vault.ErrInvalidKey)
	assert.ErrorIs(t, o.SetCredential(ctx, "ghost", openaiKey), ErrUnknownProvider)

	require.NoError(t, o.SetCredential(ctx, "x", openaiKey))
	masked, ok := o.MaskedCredential(ctx, "x")
	require.True(t, ok)
	assert.Equal(t, "sk-a********2345", masked)

	require.NoError(t, o.ClearCredentials(ctx))
	_, ok = o.MaskedCredential(ctx, "x")
	assert.False(t, ok)
}

func TestSeedCredentialsFromConfig(t *testing.T) {
	p := paid("x", 1, -1)
	p.APIKey = openaiKey
	o := newOrchestrator(t, testConfig(p), &countingFactory{}, nil)
	_, ok := o.MaskedCredential(context.Background(), "x")
	assert.True(t, ok)

	p.APIKey = "changeme"
	_, err := New(context.Background(), testConfig(p), memory.New())
	assert.ErrorIs(t, err, vault.ErrPlaceholderKey)
}

func TestRemainingQuotaUnknown(t *testing.T) {
	o := newOrchestrator(t, testConfig(), &countingFactory{}, nil)
	_, err := o.RemainingQuota(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestConcurrentRequestsHoldDailyLimit(t *testing.T) {
	var calls atomic.Int32
	slow := func(cfg config.ProviderConfig, _ string) (provider.Caller, error) {
		return callerFunc(func(ctx context.Context, req models.Request) (string, error) {
			calls.Add(1)
			select {
			case <-time.After(50 * time.Millisecond):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			return `{"title":"` + req.Items[0] + `","instructions":["Cook it"]}`, nil
		}), nil
	}

	ctx := context.Background()
	o, err := New(ctx, testConfig(paid("x", 1, 1)), memory.New(),
		WithLogger(zaptest.NewLogger(t)),
		WithDispatchOptions(dispatch.WithCallerFactory(slow)))
	require.NoError(t, err)
	require.NoError(t, o.SetCredential(ctx, "x", openaiKey))

	const n = 5
	sources := make([]models.Source, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := models.Request{Kind: models.KindRecipe, Items: []string{fmt.Sprintf("item-%d", i)}}
			sources[i] = o.Request(ctx, req, Options{}).Source
		}(i)
	}
	wg.Wait()

	served := 0
	for _, src := range sources {
		if src == models.ProviderSource("x") {
			served++
		} else {
			assert.Equal(t, models.SourceFallback, src)
		}
	}
	assert.Equal(t, 1, served)
	assert.Equal(t, int32(1), calls.Load())

	usage, err := o.Usage(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.DailyCount)
}

func TestRotatedCredentialSurvivesRestart(t *testing.T) {
	const rotated = "sk-zyxwvutsrqponmlkjihgfedcba987654"
	store := memory.New()
	p := paid("x", 1, -1)
	p.APIKey = openaiKey
	ctx := context.Background()

	o1, err := New(ctx, testConfig(p), store)
	require.NoError(t, err)
	require.NoError(t, o1.SetCredential(ctx, "x", rotated))

	o2, err := New(ctx, testConfig(p), store)
	require.NoError(t, err)
	masked, ok := o2.MaskedCredential(ctx, "x")
	require.True(t, ok)
	assert.Equal(t, "sk-z********7654", masked, "config key only seeds an empty vault entry")
}

func TestCachedResultIsolatedFromCaller(t *testing.T) {
	f := &countingFactory{}
	o := newOrchestrator(t, testConfig(paid("x", 1, -1)), f, nil)
	ctx := context.Background()
	require.NoError(t, o.SetCredential(ctx, "x", openaiKey))

	first := o.Request(ctx, chickenRice, Options{})
	r := first.Data.(models.Recipe)
	require.NotEmpty(t, r.Instructions)
	r.Instructions[0] = "tampered"
	r.Ingredients = append(r.Ingredients[:0], "tampered")

	second := o.Request(ctx, chickenRice, Options{})
	require.Equal(t, models.SourceCache, second.Source)
	cached := second.Data.(models.Recipe)
	assert.NotEqual(t, "tampered", cached.Instructions[0])
	assert.NotContains(t, cached.Ingredients, "tampered")

	cached.Instructions[0] = "tampered again"
	third := o.Request(ctx, chickenRice, Options{})
	assert.NotEqual(t, "tampered again", third.Data.(models.Recipe).Instructions[0])
}
