package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/config"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/entity"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/repository"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/service"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/infra/metrics"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
)

const (
	tracerName       = "github.com/hoamxTrav/hoamx-watcher-agent/internal/usecase"
	maxAuditedErrors = 10
)

type WatcherConfig struct {
	Name          string
	Env           string
	DefaultTenant string
	Tenants       []string
	BatchSize     int
	LockPrefix    string
}

type WatcherDeps struct {
	Store      repository.Store
	Cursors    repository.CursorRepository
	Source     repository.SourceRepository
	Outbox     repository.OutboxRepository
	Audit      repository.AuditLogRepository
	Dispatcher service.Dispatcher
	Locker     repository.Locker
	Builder    EventBuilder
	Metrics    *metrics.Collector
}

// Watcher runs watch cycles: cursor, fetch, outbox insert, dispatch, mark,
// advance. Each stage commits on its own so a crash leaves a resumable state.
type Watcher struct {
	cfg        WatcherConfig
	store      repository.Store
	cursors    repository.CursorRepository
	source     repository.SourceRepository
	outbox     repository.OutboxRepository
	audit      repository.AuditLogRepository
	dispatcher service.Dispatcher
	locker     repository.Locker
	builder    EventBuilder
	metrics    *metrics.Collector
	log        *logrus.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

var _ service.WatcherService = (*Watcher)(nil)

func NewWatcher(cfg WatcherConfig, deps WatcherDeps, log *logrus.Logger) *Watcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.LockPrefix == "" {
		cfg.LockPrefix = "watcher"
	}
	return &Watcher{
		cfg:        cfg,
		store:      deps.Store,
		cursors:    deps.Cursors,
		source:     deps.Source,
		outbox:     deps.Outbox,
		audit:      deps.Audit,
		dispatcher: deps.Dispatcher,
		locker:     deps.Locker,
		builder:    deps.Builder,
		metrics:    deps.Metrics,
		log:        log,
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}
}

func (w *Watcher) RunCycle(ctx context.Context, req entity.CycleRequest) (entity.CycleResult, error) {
	tenant, batchSize, err := w.normalize(req)
	if err != nil {
		return entity.CycleResult{}, err
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	log := w.log.WithFields(logrus.Fields{
		"watcher":    w.cfg.Name,
		"tenant":     tenant,
		"request_id": req.RequestID,
	})

	handle, acquired, err := w.locker.TryLock(ctx, w.lockKey(tenant))
	if err != nil {
		w.metrics.CycleOutcome(tenant, "FAILED")
		log.WithError(err).Error("acquire cycle lock failed")
		return entity.CycleResult{}, fmt.Errorf("acquire cycle lock: %w", err)
	}
	if !acquired {
		w.metrics.CycleOutcome(tenant, "SKIPPED")
		log.Warn("cycle skipped, lock held elsewhere")
		skipped := w.auditEntry(req.RequestID, tenant, entity.AuditActionRunSkipped, entity.AuditStatusOK,
			map[string]any{"reason": "cycle in progress"}, "")
		if err := w.audit.Record(ctx, skipped); err != nil {
			log.WithError(err).Warn("record skipped cycle failed")
		}
		return entity.CycleResult{}, service.ErrCycleInProgress
	}
	defer func() {
		if err := handle.Unlock(context.WithoutCancel(ctx)); err != nil {
			log.WithError(err).Warn("release cycle lock failed")
		}
	}()

	ctx, span := w.tracer.Start(ctx, "watcher.cycle", trace.WithAttributes(
		attribute.String("watcher", w.cfg.Name),
		attribute.String("tenant", tenant),
		attribute.Int("batch_size", batchSize),
	))
	defer span.End()

	result, err := w.runLocked(ctx, log, req, tenant, batchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.metrics.CycleOutcome(tenant, "FAILED")
		log.WithError(err).Error("watch cycle failed")
		return entity.CycleResult{}, err
	}

	span.SetAttributes(
		attribute.Int("observed_count", result.ObservedCount),
		attribute.Int("new_events_count", result.NewEventsCount),
		attribute.Int("dispatched_count", result.DispatchedCount),
		attribute.Int64("last_seen_id_after", result.LastSeenIDAfter),
	)
	if result.Status == entity.CycleStatusError {
		span.SetStatus(codes.Error, "dispatch errors")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	w.metrics.ObserveCycle(result)
	log.WithFields(logrus.Fields{
		"observed":   result.ObservedCount,
		"new":        result.NewEventsCount,
		"skipped":    result.SkippedExistingEventsCount,
		"dispatched": result.DispatchedCount,
		"errors":     len(result.Errors),
		"cursor":     result.LastSeenIDAfter,
	}).Info("watch cycle finished")
	return result, nil
}

func (w *Watcher) runLocked(ctx context.Context, log *logrus.Entry, req entity.CycleRequest, tenant string, batchSize int) (entity.CycleResult, error) {
	start := w.now()
	result := entity.CycleResult{
		Tenant:      tenant,
		WatcherName: w.cfg.Name,
		Status:      entity.CycleStatusOK,
		Errors:      []string{},
	}

	var before int64
	err := w.store.WithTx(ctx, func(ctx context.Context) error {
		lastSeen, err := w.cursors.ReadOrCreate(ctx, w.cfg.Name, tenant)
		if err != nil {
			return err
		}
		before = lastSeen
		return w.audit.Record(ctx, w.auditEntry(req.RequestID, tenant, entity.AuditActionRunStart, entity.AuditStatusOK,
			map[string]any{"last_seen_id": lastSeen, "batch_size": batchSize, "emit_full_row": req.EmitFullRow}, ""))
	})
	if err != nil {
		return entity.CycleResult{}, fmt.Errorf("start cycle: %w", err)
	}
	result.LastSeenIDBefore = before
	result.LastSeenIDAfter = before

	if err := ctx.Err(); err != nil {
		return entity.CycleResult{}, err
	}
	rows, err := w.source.FetchAfter(ctx, tenant, before, batchSize)
	if err != nil {
		return entity.CycleResult{}, fmt.Errorf("fetch source rows: %w", err)
	}
	result.ObservedCount = len(rows)

	if len(rows) == 0 {
		result.DurationMS = w.since(start)
		err := w.store.WithTx(ctx, func(ctx context.Context) error {
			if err := w.audit.Record(ctx, w.auditEntry(req.RequestID, tenant, entity.AuditActionObserveNone, entity.AuditStatusOK, result, "")); err != nil {
				return err
			}
			return w.cursors.Advance(ctx, w.cfg.Name, tenant, before, toJSON(result))
		})
		if err != nil {
			return entity.CycleResult{}, fmt.Errorf("record empty cycle: %w", err)
		}
		return result, nil
	}

	events := make([]entity.Event, 0, len(rows))
	entries := make([]entity.OutboxEvent, 0, len(rows))
	maxSeen := before
	for _, row := range rows {
		ev, err := w.builder.Build(tenant, row, req.EmitFullRow)
		if err != nil {
			return entity.CycleResult{}, fmt.Errorf("build event: %w", err)
		}
		entry, err := outboxEntry(ev)
		if err != nil {
			return entity.CycleResult{}, fmt.Errorf("build event: %w", err)
		}
		if ev.SourceRowID > maxSeen {
			maxSeen = ev.SourceRowID
		}
		events = append(events, ev)
		entries = append(entries, entry)
	}

	if err := ctx.Err(); err != nil {
		return entity.CycleResult{}, err
	}
	var fresh []entity.Event
	err = w.store.WithTx(ctx, func(ctx context.Context) error {
		fresh = fresh[:0]
		for i, entry := range entries {
			outcome, err := w.outbox.InsertIfAbsent(ctx, entry)
			if err != nil {
				return err
			}
			if outcome == repository.Inserted {
				fresh = append(fresh, events[i])
			}
		}
		return nil
	})
	if err != nil {
		return entity.CycleResult{}, fmt.Errorf("insert outbox events: %w", err)
	}
	result.NewEventsCount = len(fresh)
	result.SkippedExistingEventsCount = len(events) - len(fresh)

	// Once events are committed the cycle finishes its bookkeeping even if
	// the caller goes away, so the outbox and cursor agree.
	bookCtx := context.WithoutCancel(ctx)
	sinks := w.dispatcher != nil && w.dispatcher.Enabled()

	if sinks && len(fresh) > 0 {
		dispatched, errs := w.dispatcher.Send(ctx, fresh)
		result.DispatchedCount = dispatched
		if errs != nil {
			result.Errors = errs
		}

		ids := make([]string, 0, len(fresh))
		for _, ev := range fresh {
			ids = append(ids, ev.EventID)
		}
		status := entity.AuditStatusOK
		if len(result.Errors) > 0 {
			status = entity.AuditStatusError
		}
		detail := map[string]any{
			"new_events_count": len(fresh),
			"dispatched_count": dispatched,
			"errors":           firstN(result.Errors, maxAuditedErrors),
		}
		err := w.store.WithTx(bookCtx, func(ctx context.Context) error {
			if len(result.Errors) > 0 {
				if err := w.outbox.MarkError(ctx, ids, strings.Join(result.Errors, "; ")); err != nil {
					return err
				}
			} else if err := w.outbox.MarkDispatched(ctx, ids); err != nil {
				return err
			}
			return w.audit.Record(ctx, w.auditEntry(req.RequestID, tenant, entity.AuditActionDispatch, status, detail, ""))
		})
		if err != nil {
			return entity.CycleResult{}, fmt.Errorf("record dispatch outcome: %w", err)
		}
	}

	result.LastSeenIDAfter = maxSeen
	if len(result.Errors) > 0 {
		result.Status = entity.CycleStatusError
	}
	result.DurationMS = w.since(start)

	runEndStatus := entity.AuditStatusOK
	if result.Status == entity.CycleStatusError {
		runEndStatus = entity.AuditStatusError
	}
	err = w.store.WithTx(bookCtx, func(ctx context.Context) error {
		if err := w.cursors.Advance(ctx, w.cfg.Name, tenant, result.LastSeenIDAfter, toJSON(result)); err != nil {
			return err
		}
		return w.audit.Record(ctx, w.auditEntry(req.RequestID, tenant, entity.AuditActionRunEnd, runEndStatus,
			result, strings.Join(result.Errors, "\n")))
	})
	if err != nil {
		return entity.CycleResult{}, fmt.Errorf("advance cursor: %w", err)
	}
	if len(result.Errors) > 0 {
		log.WithField("first_error", result.Errors[0]).Warn("dispatch reported errors")
	}
	return result, nil
}

// State returns the stored cursor for tenant.
func (w *Watcher) State(ctx context.Context, tenant string) (entity.WatcherState, error) {
	tenant, _, err := w.normalize(entity.CycleRequest{Tenant: tenant, BatchSize: w.cfg.BatchSize})
	if err != nil {
		return entity.WatcherState{}, err
	}
	return w.cursors.Get(ctx, w.cfg.Name, tenant)
}

func (w *Watcher) normalize(req entity.CycleRequest) (string, int, error) {
	tenant := strings.TrimSpace(req.Tenant)
	if tenant == "" {
		tenant = w.cfg.DefaultTenant
	}
	if !w.allowed(tenant) {
		return "", 0, fmt.Errorf("%w: %q", service.ErrTenantNotAllowed, tenant)
	}
	batchSize := req.BatchSize
	if batchSize == 0 {
		batchSize = w.cfg.BatchSize
	}
	if batchSize < 1 || batchSize > config.MaxBatchSize {
		return "", 0, fmt.Errorf("%w: %d not in 1..%d", service.ErrInvalidBatchSize, batchSize, config.MaxBatchSize)
	}
	return tenant, batchSize, nil
}

func (w *Watcher) allowed(tenant string) bool {
	if tenant == "" {
		return false
	}
	for _, t := range w.cfg.Tenants {
		if t == tenant {
			return true
		}
	}
	return false
}

func (w *Watcher) lockKey(tenant string) string {
	return w.cfg.LockPrefix + ":" + w.cfg.Name + ":" + tenant
}

func (w *Watcher) since(start time.Time) int64 {
	return w.now().Sub(start).Milliseconds()
}

func (w *Watcher) auditEntry(requestID, tenant, action, status string, detail any, errText string) entity.AgentLog {
	entry := entity.AgentLog{
		TS:        w.now().UTC(),
		AgentName: w.cfg.Name,
		Env:       w.cfg.Env,
		RequestID: requestID,
		EventType: w.builder.EventType,
		Tenant:    tenant,
		Action:    action,
		Status:    status,
		Detail:    toJSON(detail),
	}
	if errText != "" {
		entry.Error = &errText
	}
	return entry
}

func outboxEntry(ev entity.Event) (entity.OutboxEvent, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return entity.OutboxEvent{}, fmt.Errorf("encode payload for %s: %w", ev.EventID, err)
	}
	return entity.OutboxEvent{
		EventID:     ev.EventID,
		EventType:   ev.EventType,
		Tenant:      ev.Tenant,
		SourceRowID: ev.SourceRowID,
		Payload:     datatypes.JSON(payload),
		Status:      entity.OutboxStatusNew,
	}, nil
}

// toJSON encodes audit details and cursor summaries, whose types always marshal.
func toJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON(`{}`)
	}
	return datatypes.JSON(b)
}

func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
