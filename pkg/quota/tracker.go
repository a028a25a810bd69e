// Package quota keeps per-provider request counters in calendar-day and
// calendar-month windows and enforces a minimum spacing between requests.
package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/backstop/pkg/kv"
	"github.com/pario-ai/backstop/pkg/logging"
	"github.com/pario-ai/backstop/pkg/models"
)

// Limits bounds one provider. Negative counts mean unlimited.
type Limits struct {
	Daily       int
	Monthly     int
	MinInterval time.Duration
}

// Decision is the answer to CanRequest.
type Decision struct {
	Allowed bool
	// Wait is how long the caller must hold off to honour MinInterval.
	Wait   time.Duration
	Reason string
}

const (
	ReasonDailyExhausted   = "daily quota exhausted"
	ReasonMonthlyExhausted = "monthly quota exhausted"
	ReasonUnknownProvider  = "unknown provider"
	ReasonWaitTooLong      = "min interval wait too long"
)

// Tracker owns the usage:<providerId> entries. All reads and writes go
// through one mutex so a concurrent reader never sees a half-applied update.
//
// Reservations that are still in flight count against the limits and
// hold the next min-interval slot, so concurrent callers cannot all pass
// the check before any of them records.
type Tracker struct {
	mu       sync.Mutex
	store    kv.Store
	limits   map[string]Limits
	records  map[string]*models.UsageRecord
	inflight map[string]int
	pending  map[string]time.Time // latest slot held by an open reservation
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// New creates a Tracker for the given per-provider limits.
func New(store kv.Store, limits map[string]Limits, opts ...Option) *Tracker {
	t := &Tracker{
		store:    store,
		limits:   limits,
		records:  make(map[string]*models.UsageRecord),
		inflight: make(map[string]int),
		pending:  make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logging.OrNop(t.logger)
	return t
}

// CanRequest reports whether providerID may be called now. Open
// reservations count as used.
func (t *Tracker) CanRequest(ctx context.Context, providerID string) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()
	dec, _ := t.decide(ctx, providerID, t.now())
	return dec
}

// Reserve claims one request slot for providerID when the limits allow it
// and the min-interval wait does not exceed maxWait. The returned
// Reservation is nil when nothing was claimed. The caller must Commit it
// after a successful call or Release it otherwise.
func (t *Tracker) Reserve(ctx context.Context, providerID string, maxWait time.Duration) (Decision, *Reservation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	dec, last := t.decide(ctx, providerID, now)
	if !dec.Allowed {
		return dec, nil
	}
	if dec.Wait > maxWait {
		return Decision{Wait: dec.Wait, Reason: ReasonWaitTooLong}, nil
	}

	r := &Reservation{
		t:           t,
		providerID:  providerID,
		slot:        now.Add(dec.Wait),
		prevPending: t.pending[providerID],
	}
	t.inflight[providerID]++
	if t.limits[providerID].MinInterval > 0 && r.slot.After(last) {
		t.pending[providerID] = r.slot
	}
	return dec, r
}

// decide evaluates the limits for providerID. It also returns the time
// the min interval is measured from. Callers hold t.mu.
func (t *Tracker) decide(ctx context.Context, providerID string, now time.Time) (Decision, time.Time) {
	lim, ok := t.limits[providerID]
	if !ok {
		return Decision{Reason: ReasonUnknownProvider}, time.Time{}
	}

	rec := t.current(ctx, providerID, now)
	open := t.inflight[providerID]

	if lim.Daily >= 0 && rec.DailyCount+open >= lim.Daily {
		return Decision{Reason: ReasonDailyExhausted}, time.Time{}
	}
	if lim.Monthly >= 0 && rec.MonthlyCount+open >= lim.Monthly {
		return Decision{Reason: ReasonMonthlyExhausted}, time.Time{}
	}

	last := rec.LastRequestAt
	if p := t.pending[providerID]; p.After(last) {
		last = p
	}
	var wait time.Duration
	if !last.IsZero() {
		wait = lim.MinInterval - now.Sub(last)
		if wait < 0 {
			wait = 0
		}
	}
	return Decision{Allowed: true, Wait: wait}, last
}

// Reservation is a claimed request slot.
type Reservation struct {
	t           *Tracker
	providerID  string
	slot        time.Time
	prevPending time.Time
	done        bool
}

// Commit counts the reserved request and persists the record. The write
// is not cancelled with ctx: the request it accounts for already happened.
func (r *Reservation) Commit(ctx context.Context) (models.Remaining, error) {
	t := r.t
	t.mu.Lock()
	defer t.mu.Unlock()

	if r.done {
		return t.remaining(r.providerID, t.current(ctx, r.providerID, t.now())), nil
	}
	r.done = true
	t.inflight[r.providerID]--
	if p, ok := t.pending[r.providerID]; ok && !p.After(t.now()) {
		delete(t.pending, r.providerID)
	}
	return t.record(context.WithoutCancel(ctx), r.providerID)
}

// Release gives the slot back without counting a request. It is safe to
// call after Commit.
func (r *Reservation) Release() {
	t := r.t
	t.mu.Lock()
	defer t.mu.Unlock()

	if r.done {
		return
	}
	r.done = true
	t.inflight[r.providerID]--
	if t.pending[r.providerID].Equal(r.slot) {
		if r.prevPending.IsZero() {
			delete(t.pending, r.providerID)
		} else {
			t.pending[r.providerID] = r.prevPending
		}
	}
}

// RecordRequest counts one successful request against providerID and
// returns the remaining quota. The write is persisted before returning.
func (t *Tracker) RecordRequest(ctx context.Context, providerID string) (models.Remaining, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record(ctx, providerID)
}

// record increments and persists the counters. Callers hold t.mu.
func (t *Tracker) record(ctx context.Context, providerID string) (models.Remaining, error) {
	now := t.now()
	rec := t.current(ctx, providerID, now)

	next := rec
	next.DailyCount++
	next.MonthlyCount++
	next.LastRequestAt = now

	data, err := json.Marshal(next)
	if err != nil {
		return models.Remaining{}, fmt.Errorf("encode usage: %w", err)
	}
	if err := t.store.Put(ctx, kv.UsageKey(providerID), data); err != nil {
		return models.Remaining{}, fmt.Errorf("persist usage: %w", err)
	}
	t.records[providerID] = &next

	t.logger.Debug("request recorded",
		zap.String("provider", providerID),
		zap.Int("daily_count", next.DailyCount),
		zap.Int("monthly_count", next.MonthlyCount))

	return t.remaining(providerID, next), nil
}

// Remaining returns requests left in the current windows.
func (t *Tracker) Remaining(ctx context.Context, providerID string) models.Remaining {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining(providerID, t.current(ctx, providerID, t.now()))
}

// Record returns the usage record as seen in the current windows.
func (t *Tracker) Record(ctx context.Context, providerID string) models.UsageRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current(ctx, providerID, t.now())
}

func (t *Tracker) remaining(providerID string, rec models.UsageRecord) models.Remaining {
	lim := t.limits[providerID]
	return models.Remaining{
		Daily:   left(lim.Daily, rec.DailyCount),
		Monthly: left(lim.Monthly, rec.MonthlyCount),
	}
}

func left(limit, used int) int {
	if limit < 0 {
		return -1
	}
	if used >= limit {
		return 0
	}
	return limit - used
}

// current returns the record for providerID with counters rolled over to
// the windows containing now. Callers hold t.mu. The rolled-over view is
// not written back; the next RecordRequest persists it.
func (t *Tracker) current(ctx context.Context, providerID string, now time.Time) models.UsageRecord {
	rec, ok := t.records[providerID]
	if !ok {
		rec = t.load(ctx, providerID)
		t.records[providerID] = rec
	}

	view := *rec
	today := now.Format(models.DateLayout)
	if view.Date != today {
		if !sameMonth(view.Date, now) {
			view.MonthlyCount = 0
		}
		view.DailyCount = 0
		view.Date = today
	}
	return view
}

func (t *Tracker) load(ctx context.Context, providerID string) *models.UsageRecord {
	rec := &models.UsageRecord{ProviderID: providerID}

	data, ok, err := t.store.Get(ctx, kv.UsageKey(providerID))
	if err != nil {
		t.logger.Warn("usage read failed, starting from zero",
			zap.String("provider", providerID), zap.Error(err))
		return rec
	}
	if !ok {
		return rec
	}
	if err := json.Unmarshal(data, rec); err != nil {
		t.logger.Warn("usage record corrupt, starting from zero",
			zap.String("provider", providerID), zap.Error(err))
		return &models.UsageRecord{ProviderID: providerID}
	}
	rec.ProviderID = providerID
	return rec
}

func sameMonth(date string, now time.Time) bool {
	d, err := time.ParseInLocation(models.DateLayout, date, now.Location())
	if err != nil {
		return false
	}
	return d.Year() == now.Year() && d.Month() == now.Month()
}
