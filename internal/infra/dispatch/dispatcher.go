package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/entity"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/service"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/infra/metrics"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const tracerName = "github.com/hoamxTrav/hoamx-watcher-agent/internal/infra/dispatch"

// Sink is one downstream destination. The returned error text is stored
// verbatim in the outbox and audit log, so it must not carry secrets.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event entity.Event, body []byte) error
}

type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	limiter *rate.Limiter
	metrics *metrics.Collector
	log     *logrus.Logger
	tracer  trace.Tracer
}

var _ service.Dispatcher = (*Dispatcher)(nil)

type Option func(*Dispatcher)

// WithTimeout bounds every single delivery attempt.
func WithTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.timeout = d
		}
	}
}

// WithRateLimit caps outbound deliveries across all sinks. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(dp *Dispatcher) {
		if rps <= 0 {
			dp.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		dp.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(dp *Dispatcher) { dp.metrics = c }
}

func New(sinks []Sink, log *logrus.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sinks:   sinks,
		timeout: 20 * time.Second,
		log:     log,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Enabled() bool {
	return d != nil && len(d.sinks) > 0
}

// Send makes one attempt per sink for every event, in event order. Sinks
// for the same event run concurrently; errors are reported in sink order.
func (d *Dispatcher) Send(ctx context.Context, events []entity.Event) (int, []string) {
	errs := []string{}
	if !d.Enabled() {
		return 0, errs
	}

	dispatched := 0
	for _, ev := range events {
		body, err := json.Marshal(ev)
		if err != nil {
			for _, sink := range d.sinks {
				errs = append(errs, fmt.Sprintf("dispatch %s error=%v", sink.Name(), err))
			}
			continue
		}

		results := make([]error, len(d.sinks))
		var g errgroup.Group
		for i, sink := range d.sinks {
			i, sink := i, sink
			g.Go(func() error {
				results[i] = d.deliver(ctx, sink, ev, body)
				return nil
			})
		}
		_ = g.Wait()

		for _, err := range results {
			if err != nil {
				errs = append(errs, err.Error())
				continue
			}
			dispatched++
		}
	}
	return dispatched, errs
}

func (d *Dispatcher) deliver(ctx context.Context, sink Sink, ev entity.Event, body []byte) error {
	ctx, span := d.tracer.Start(ctx, "dispatch.deliver", trace.WithAttributes(
		attribute.String("sink", sink.Name()),
		attribute.String("event.id", ev.EventID),
		attribute.String("tenant", ev.Tenant),
	))
	defer span.End()

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			err = fmt.Errorf("dispatch %s error=rate limit: %w", sink.Name(), err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	attemptCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	err := sink.Deliver(attemptCtx, ev, body)
	d.metrics.ObserveDelivery(sink.Name(), err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if d.log != nil {
			d.log.WithFields(logrus.Fields{
				"sink":     sink.Name(),
				"event_id": ev.EventID,
				"tenant":   ev.Tenant,
			}).WithError(err).Warn("delivery failed")
		}
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}
