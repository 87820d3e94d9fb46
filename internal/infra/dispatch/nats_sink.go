package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/entity"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, msgID string) error
}

// NATSSink publishes to a JetStream subject with the event id as message id,
// so the stream's duplicate window absorbs redelivered events.
type NATSSink struct {
	pub     Publisher
	subject string
}

func NewNATSSink(pub Publisher, subject string) (*NATSSink, error) {
	if pub == nil {
		return nil, errors.New("nats sink: publisher is required")
	}
	if subject == "" {
		return nil, errors.New("nats sink: subject is required")
	}
	return &NATSSink{pub: pub, subject: subject}, nil
}

func (s *NATSSink) Name() string { return "nats:" + s.subject }

func (s *NATSSink) Deliver(ctx context.Context, ev entity.Event, body []byte) error {
	if err := s.pub.Publish(ctx, s.subject, body, ev.EventID); err != nil {
		return fmt.Errorf("dispatch %s error=%v", s.Name(), err)
	}
	return nil
}
