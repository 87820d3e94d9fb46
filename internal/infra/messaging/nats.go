package messaging

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/config"
	"github.com/nats-io/nats.go"
)

type NATSClient struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	cfg  config.NATS
}

// NewNATS returns a nil client when no URL is configured.
func NewNATS(ctx context.Context, cfg config.NATS) (*NATSClient, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	if cfg.Stream == "" || cfg.Subject == "" {
		return nil, errors.New("nats: stream and subject are required")
	}

	conn, err := nats.Connect(cfg.URL, nats.Name("hoamx-watcher-agent"))
	if err != nil {
		return nil, err
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ensureStream(ctx, js, cfg); err != nil {
		conn.Close()
		return nil, err
	}

	return &NATSClient{conn: conn, js: js, cfg: cfg}, nil
}

func (c *NATSClient) Close() {
	if c == nil || c.conn == nil {
		return
	}
	c.conn.Close()
}

func (c *NATSClient) Subject() string {
	if c == nil {
		return ""
	}
	return c.cfg.Subject
}

func (c *NATSClient) Publish(ctx context.Context, subject string, payload []byte, msgID string) error {
	if c == nil || c.js == nil {
		return errors.New("nats: jetstream not initialized")
	}
	msg := nats.NewMsg(subject)
	msg.Data = payload
	if msgID != "" {
		msg.Header.Set(nats.MsgIdHdr, msgID)
	}
	// ExpectStream fails the publish if the subject is not bound to our stream,
	// where the duplicate window would not apply.
	_, err := c.js.PublishMsg(msg, nats.Context(ctx), nats.ExpectStream(c.cfg.Stream))
	return err
}

func ensureStream(ctx context.Context, js nats.JetStreamContext, cfg config.NATS) error {
	info, err := js.StreamInfo(cfg.Stream, nats.Context(ctx))
	if err == nil {
		if !slices.Contains(info.Config.Subjects, cfg.Subject) {
			info.Config.Subjects = append(info.Config.Subjects, cfg.Subject)
			_, err = js.UpdateStream(&info.Config, nats.Context(ctx))
		}
		return err
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}

	dupWindow := cfg.DuplicateWindow
	if dupWindow <= 0 {
		dupWindow = 2 * time.Minute
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   []string{cfg.Subject},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		Duplicates: dupWindow,
	}, nats.Context(ctx))
	return err
}
