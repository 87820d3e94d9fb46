package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/entity"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/repository"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/service"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/infra/lock"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct{}

func (memStore) Ping(context.Context) error { return nil }
func (memStore) Close()                     {}
func (memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

type memCursors struct {
	mu         sync.Mutex
	values     map[string]int64
	advanceErr error
	advanced   int
}

func (c *memCursors) ReadOrCreate(_ context.Context, name, tenant string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = map[string]int64{}
	}
	return c.values[name+"/"+tenant], nil
}

func (c *memCursors) Advance(_ context.Context, name, tenant string, id int64, _ []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.advanceErr != nil {
		return c.advanceErr
	}
	if id < c.values[name+"/"+tenant] {
		return repository.ErrCursorRegression
	}
	c.values[name+"/"+tenant] = id
	c.advanced++
	return nil
}

func (c *memCursors) Get(_ context.Context, name, tenant string) (entity.WatcherState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[name+"/"+tenant]
	if !ok {
		return entity.WatcherState{}, repository.ErrNotFound
	}
	return entity.WatcherState{WatcherName: name, Tenant: tenant, LastSeenID: v}, nil
}

type memSource struct {
	rows []entity.SourceRow
	err  error
}

func (s *memSource) FetchAfter(_ context.Context, _ string, after int64, limit int) ([]entity.SourceRow, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := []entity.SourceRow{}
	for _, r := range s.rows {
		id, _ := r.ID("id")
		if id > after && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

type memOutbox struct {
	mu      sync.Mutex
	entries map[string]entity.OutboxEvent
}

func (o *memOutbox) InsertIfAbsent(_ context.Context, ev entity.OutboxEvent) (repository.InsertOutcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.entries == nil {
		o.entries = map[string]entity.OutboxEvent{}
	}
	if _, ok := o.entries[ev.EventID]; ok {
		return repository.AlreadyExists, nil
	}
	o.entries[ev.EventID] = ev
	return repository.Inserted, nil
}

func (o *memOutbox) mark(ids []string, status entity.OutboxStatus, msg *string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, id := range ids {
		ev := o.entries[id]
		ev.Status = status
		ev.LastError = msg
		o.entries[id] = ev
	}
}

func (o *memOutbox) MarkDispatched(_ context.Context, ids []string) error {
	o.mark(ids, entity.OutboxStatusDispatched, nil)
	return nil
}

func (o *memOutbox) MarkError(_ context.Context, ids []string, msg string) error {
	o.mark(ids, entity.OutboxStatusError, &msg)
	return nil
}

func (o *memOutbox) List(context.Context, repository.OutboxFilter) ([]entity.OutboxEvent, error) {
	return nil, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []entity.AgentLog
}

func (a *memAudit) Record(_ context.Context, e entity.AgentLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func (a *memAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type stubDispatcher struct {
	enabled bool
	send    func(ctx context.Context, events []entity.Event) (int, []string)
	calls   [][]entity.Event
}

func (d *stubDispatcher) Enabled() bool { return d.enabled }

func (d *stubDispatcher) Send(ctx context.Context, events []entity.Event) (int, []string) {
	d.calls = append(d.calls, events)
	if d.send != nil {
		return d.send(ctx, events)
	}
	return len(events), []string{}
}

type fixture struct {
	cursors    *memCursors
	source     *memSource
	outbox     *memOutbox
	audit      *memAudit
	dispatcher *stubDispatcher
	locker     *lock.Local
	watcher    *Watcher
}

func rows(ids ...int64) []entity.SourceRow {
	out := make([]entity.SourceRow, 0, len(ids))
	for _, id := range ids {
		out = append(out, entity.SourceRow{"id": id, "email": "x@example.com"})
	}
	return out
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, _ := test.NewNullLogger()
	f := &fixture{
		cursors:    &memCursors{},
		source:     &memSource{},
		outbox:     &memOutbox{},
		audit:      &memAudit{},
		dispatcher: &stubDispatcher{enabled: true},
		locker:     lock.NewLocal(),
	}
	builder := NewEventBuilder("contact.created", "id")
	builder.Now = fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	f.watcher = NewWatcher(WatcherConfig{
		Name:          "watcher",
		Env:           "test",
		DefaultTenant: "hoamx_com",
		Tenants:       []string{"hoamx_com", "acme"},
		BatchSize:     50,
	}, WatcherDeps{
		Store:      memStore{},
		Cursors:    f.cursors,
		Source:     f.source,
		Outbox:     f.outbox,
		Audit:      f.audit,
		Dispatcher: f.dispatcher,
		Locker:     f.locker,
		Builder:    builder,
	}, log)
	return f
}

func TestWatcher_DefaultsTenantAndBatchSize(t *testing.T) {
	f := newFixture(t)
	f.source.rows = rows(1, 2)

	res, err := f.watcher.RunCycle(context.Background(), entity.CycleRequest{})
	require.NoError(t, err)
	assert.Equal(t, "hoamx_com", res.Tenant)
	assert.Equal(t, "watcher", res.WatcherName)
	assert.Equal(t, 2, res.ObservedCount)
}

func TestWatcher_RejectsInvalidRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.watcher.RunCycle(ctx, entity.CycleRequest{Tenant: "globex"})
	assert.ErrorIs(t, err, service.ErrTenantNotAllowed)

	_, err = f.watcher.RunCycle(ctx, entity.CycleRequest{BatchSize: 501})
	assert.ErrorIs(t, err, service.ErrInvalidBatchSize)

	_, err = f.watcher.RunCycle(ctx, entity.CycleRequest{BatchSize: -1})
	assert.ErrorIs(t, err, service.ErrInvalidBatchSize)

	assert.Empty(t, f.audit.actions())
}

func TestWatcher_BatchSizeBoundsTheFetch(t *testing.T) {
	f := newFixture(t)
	f.source.rows = rows(1, 2, 3, 4, 5)

	res, err := f.watcher.RunCycle(context.Background(), entity.CycleRequest{BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ObservedCount)
	assert.Equal(t, int64(2), res.LastSeenIDAfter)

	res, err = f.watcher.RunCycle(context.Background(), entity.CycleRequest{BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.LastSeenIDBefore)
	assert.Equal(t, int64(4), res.LastSeenIDAfter)
}

func TestWatcher_NoSinksLeavesEventsNew(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.enabled = false
	f.source.rows = rows(1, 2)

	res, err := f.watcher.RunCycle(context.Background(), entity.CycleRequest{})
	require.NoError(t, err)
	assert.Equal(t, entity.CycleStatusOK, res.Status)
	assert.Equal(t, 2, res.NewEventsCount)
	assert.Equal(t, 0, res.DispatchedCount)
	assert.Empty(t, res.Errors)
	assert.Empty(t, f.dispatcher.calls)
	for _, ev := range f.outbox.entries {
		assert.Equal(t, entity.OutboxStatusNew, ev.Status)
	}
	assert.Equal(t, []string{entity.AuditActionRunStart, entity.AuditActionRunEnd}, f.audit.actions())
}

func TestWatcher_SourceErrorLeavesCursor(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("relation does not exist")

	_, err := f.watcher.RunCycle(context.Background(), entity.CycleRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch source rows")
	assert.Equal(t, 0, f.cursors.advanced)
	assert.Equal(t, []string{entity.AuditActionRunStart}, f.audit.actions())
}

func TestWatcher_CursorWriteFailureKeepsOutboxRows(t *testing.T) {
	f := newFixture(t)
	f.source.rows = rows(1, 2)
	f.cursors.advanceErr = errors.New("disk full")

	_, err := f.watcher.RunCycle(context.Background(), entity.CycleRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "advance cursor")
	assert.Len(t, f.outbox.entries, 2)

	// the next cycle sees the same rows as already present
	f.cursors.advanceErr = nil
	res, err := f.watcher.RunCycle(context.Background(), entity.CycleRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewEventsCount)
	assert.Equal(t, 2, res.SkippedExistingEventsCount)
	assert.Equal(t, int64(2), res.LastSeenIDAfter)
	assert.Len(t, f.dispatcher.calls, 1)
}

func TestWatcher_LockHeldIsReportedAsInProgress(t *testing.T) {
	f := newFixture(t)
	f.source.rows = rows(1)

	handle, ok, err := f.locker.TryLock(context.Background(), "watcher:watcher:hoamx_com")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.watcher.RunCycle(context.Background(), entity.CycleRequest{})
	assert.ErrorIs(t, err, service.ErrCycleInProgress)
	assert.Equal(t, []string{entity.AuditActionRunSkipped}, f.audit.actions())
	assert.Empty(t, f.outbox.entries)

	// other tenants are not blocked
	_, err = f.watcher.RunCycle(context.Background(), entity.CycleRequest{Tenant: "acme"})
	assert.NoError(t, err)

	require.NoError(t, handle.Unlock(context.Background()))
	res, err := f.watcher.RunCycle(context.Background(), entity.CycleRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewEventsCount)
}

func TestWatcher_LockReleasedAfterFailure(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("boom")

	_, err := f.watcher.RunCycle(context.Background(), entity.CycleRequest{})
	require.Error(t, err)

	handle, ok, err := f.locker.TryLock(context.Background(), "watcher:watcher:hoamx_com")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, handle.Unlock(context.Background()))
}

func TestWatcher_CancelledDuringDispatchStillRecordsOutcome(t *testing.T) {
	f := newFixture(t)
	f.source.rows = rows(1, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.dispatcher.send = func(ctx context.Context, events []entity.Event) (int, []string) {
		cancel()
		return 0, []string{"dispatch http://sink error=context canceled"}
	}

	res, err := f.watcher.RunCycle(ctx, entity.CycleRequest{})
	require.NoError(t, err)
	assert.Equal(t, entity.CycleStatusError, res.Status)
	assert.Equal(t, int64(2), res.LastSeenIDAfter)
	assert.Equal(t, 1, f.cursors.advanced)
	for _, ev := range f.outbox.entries {
		assert.Equal(t, entity.OutboxStatusError, ev.Status)
	}
}

func TestWatcher_CancelledBeforeStartDoesNothing(t *testing.T) {
	f := newFixture(t)
	f.source.rows = rows(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.watcher.RunCycle(ctx, entity.CycleRequest{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.outbox.entries)
	assert.Equal(t, 0, f.cursors.advanced)
}

func TestWatcher_AuditErrorsAreCapped(t *testing.T) {
	f := newFixture(t)
	f.source.rows = rows(1)
	errs := make([]string, 0, 15)
	for i := 0; i < 15; i++ {
		errs = append(errs, "dispatch sink error=refused")
	}
	f.dispatcher.send = func(context.Context, []entity.Event) (int, []string) { return 0, errs }

	res, err := f.watcher.RunCycle(context.Background(), entity.CycleRequest{})
	require.NoError(t, err)
	assert.Len(t, res.Errors, 15)

	var dispatch entity.AgentLog
	for _, e := range f.audit.entries {
		if e.Action == entity.AuditActionDispatch {
			dispatch = e
		}
	}
	require.NotEmpty(t, dispatch.Detail)
	assert.Equal(t, entity.AuditStatusError, dispatch.Status)
	assert.Contains(t, string(dispatch.Detail), `"dispatched_count":0`)
	assert.Equal(t, 10, countOccurrences(string(dispatch.Detail), "refused"))
}

func TestWatcher_NonFiniteFloatsKeepPayloadIntact(t *testing.T) {
	f := newFixture(t)
	f.source.rows = []entity.SourceRow{{"id": int64(1), "score": math.NaN(), "ratio": math.Inf(-1), "weight": 0.5}}

	res, err := f.watcher.RunCycle(context.Background(), entity.CycleRequest{EmitFullRow: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewEventsCount)

	stored, ok := f.outbox.entries["contact.created:hoamx_com:1"]
	require.True(t, ok)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(stored.Payload, &payload))
	assert.Equal(t, "contact.created:hoamx_com:1", payload["event_id"])
	assert.Equal(t, "hoamx_com", payload["tenant"])
	assert.Equal(t, float64(1), payload["source_row_id"])
	assert.Equal(t, map[string]any{"id": float64(1), "score": "NaN", "ratio": "-Inf", "weight": 0.5}, payload["data"])
}

func TestWatcher_UnencodableRowFailsBeforeInsert(t *testing.T) {
	f := newFixture(t)
	f.source.rows = []entity.SourceRow{{"id": int64(1), "blob": make(chan int)}}

	_, err := f.watcher.RunCycle(context.Background(), entity.CycleRequest{EmitFullRow: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode payload for contact.created:hoamx_com:1")

	assert.Empty(t, f.outbox.entries)
	assert.Empty(t, f.dispatcher.calls)
	assert.Zero(t, f.cursors.advanced)
	assert.NotContains(t, f.audit.actions(), entity.AuditActionRunEnd)
}

func TestWatcher_State(t *testing.T) {
	f := newFixture(t)
	f.source.rows = rows(4)
	ctx := context.Background()

	_, err := f.watcher.State(ctx, "hoamx_com")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.watcher.RunCycle(ctx, entity.CycleRequest{})
	require.NoError(t, err)

	state, err := f.watcher.State(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), state.LastSeenID)

	_, err = f.watcher.State(ctx, "globex")
	assert.ErrorIs(t, err, service.ErrTenantNotAllowed)
}

func countOccurrences(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}
