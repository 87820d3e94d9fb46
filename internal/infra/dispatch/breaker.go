package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/entity"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

type BreakerConfig struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

// breakerSink fails fast once a sink has failed ConsecutiveFailures times
// in a row. An open breaker still yields one error per attempt.
type breakerSink struct {
	sink Sink
	cb   *gobreaker.CircuitBreaker
}

func WithBreaker(sink Sink, cfg BreakerConfig, log *logrus.Logger) Sink {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	halfOpen := cfg.HalfOpenRequests
	if halfOpen == 0 {
		halfOpen = 1
	}

	settings := gobreaker.Settings{
		Name:        sink.Name(),
		MaxRequests: halfOpen,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if log != nil {
				log.WithFields(logrus.Fields{"sink": name, "from": from.String(), "to": to.String()}).
					Warn("sink breaker state changed")
			}
		},
	}
	return &breakerSink{sink: sink, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *breakerSink) Name() string { return b.sink.Name() }

func (b *breakerSink) Deliver(ctx context.Context, ev entity.Event, body []byte) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.sink.Deliver(ctx, ev, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("dispatch %s error=%v", b.Name(), err)
	}
	return err
}
