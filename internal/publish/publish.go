// Package publish forwards recognition results to NATS as JSON events.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Event is one dispatched utterance result.
type Event struct {
	SessionID   string    `json:"session_id"`
	Utterance   int       `json:"utterance"`
	Kind        string    `json:"kind"`
	Text        string    `json:"text,omitempty"`
	Words       []string  `json:"words,omitempty"`
	Confidences []float64 `json:"confidences,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Config selects the server and subject.
type Config struct {
	URL            string
	Subject        string
	ConnectTimeout time.Duration
}

// Publisher owns one NATS connection.
type Publisher struct {
	conn    *nats.Conn
	subject string
	timeout time.Duration
	log     *slog.Logger
}

// Connect dials the server named by cfg.URL.
func Connect(cfg Config, log *slog.Logger) (*Publisher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("no NATS url configured")
	}
	if strings.TrimSpace(cfg.Subject) == "" {
		return nil, errors.New("no NATS subject configured")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("murmur"),
		nats.Timeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", "url", cfg.URL, "subject", cfg.Subject)
	return &Publisher{conn: conn, subject: cfg.Subject, timeout: timeout, log: log}, nil
}

// Publish encodes ev and hands it to the connection's outbound buffer.
func (p *Publisher) Publish(_ context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

// Flush waits until buffered events reach the server or ctx ends. Without
// a ctx deadline it waits at most the connect timeout.
func (p *Publisher) Flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush nats: %w", err)
	}
	return nil
}

// Healthy reports whether the connection is up.
func (p *Publisher) Healthy() bool {
	return p != nil && p.conn != nil && p.conn.Status() == nats.CONNECTED
}

// Close drains pending events and closes the connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.log.Info("closing NATS connection")
	_ = p.conn.Drain()
	p.conn.Close()
}
