package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/entity"
)

const (
	userAgent        = "hoamx-watcher-agent/1"
	maxBodySnippet   = 200
	maxBodyReadBytes = 4 << 10
)

type HTTPSinkConfig struct {
	URL        string
	AuthHeader string
	AuthValue  string
	Timeout    time.Duration
}

// HTTPSink POSTs the event JSON to one URL. Any 2xx status is a success.
type HTTPSink struct {
	client     *http.Client
	url        string
	name       string
	authHeader string
	authValue  string
}

func NewHTTPSink(cfg HTTPSinkConfig) (*HTTPSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("sink url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid sink url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("sink url must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("sink url must include a host")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &HTTPSink{
		client:     &http.Client{Timeout: timeout},
		url:        cfg.URL,
		name:       RedactURL(cfg.URL),
		authHeader: cfg.AuthHeader,
		authValue:  cfg.AuthValue,
	}, nil
}

func (s *HTTPSink) Name() string { return s.name }

func (s *HTTPSink) Deliver(ctx context.Context, ev entity.Event, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("dispatch %s error=%v", s.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Event-ID", ev.EventID)
	if s.authHeader != "" && s.authValue != "" {
		req.Header.Set(s.authHeader, s.authValue)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch %s error=%s", s.name, describeTransportError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyReadBytes))
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyReadBytes))
	return fmt.Errorf("dispatch %s status=%d body=%s", s.name, resp.StatusCode, snippet(raw, maxBodySnippet))
}

// describeTransportError drops the raw URL that *url.Error embeds.
func describeTransportError(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return "timeout: " + urlErr.Err.Error()
		}
		return urlErr.Err.Error()
	}
	return err.Error()
}

func snippet(raw []byte, max int) string {
	s := strings.ToValidUTF8(string(raw), "")
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// RedactURL removes the password from userinfo and the value of every query
// parameter so a URL can be logged or persisted.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	redacted := u.Redacted()
	if u.RawQuery == "" {
		return redacted
	}
	q := u.Query()
	for key := range q {
		q.Set(key, "REDACTED")
	}
	r, err := url.Parse(redacted)
	if err != nil {
		return redacted
	}
	r.RawQuery = q.Encode()
	return r.String()
}
