// Package bus publishes batch events to NATS so other services can react
// to files as they finish.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tutu-network/pfp/internal/domain"
)

// Default subjects.
const (
	SubjectFileAnalyzed = "pfp.file.analyzed"
	SubjectRunFinished  = "pfp.run.finished"
)

// Client wraps a NATS connection.
type Client struct {
	nc     *nats.Conn
	prefix string
}

// Connect dials url with unlimited reconnects. prefix, when set, is
// prepended to every subject ("team" → "team.pfp.file.analyzed").
func Connect(url, prefix string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("pfp"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &Client{nc: nc, prefix: prefix}, nil
}

// Close drains pending messages and closes the connection.
func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

// Conn exposes the underlying connection.
func (c *Client) Conn() *nats.Conn { return c.nc }

// Ping reports whether the connection is usable.
func (c *Client) Ping() error {
	if c.nc == nil || !c.nc.IsConnected() {
		return fmt.Errorf("nats: not connected")
	}
	return nil
}

func (c *Client) subject(s string) string {
	if c.prefix == "" {
		return s
	}
	return c.prefix + "." + s
}

// PublishJSON marshals v and publishes it on subject.
func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(c.subject(subject), b)
}

// SubscribeJSON delivers raw payloads on subject to handler.
func (c *Client) SubscribeJSON(subject string, handler func(ctx context.Context, data []byte)) (*nats.Subscription, error) {
	return c.nc.Subscribe(c.subject(subject), func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		handler(ctx, msg.Data)
	})
}

// ─── Events ─────────────────────────────────────────────────────────────────

// FileEvent is published once per finished file.
type FileEvent struct {
	RunID      string                   `json:"run_id"`
	Filename   string                   `json:"filename"`
	Status     domain.FileStatus        `json:"status"`
	SizeBytes  int64                    `json:"size_bytes"`
	Words      int                      `json:"words"`
	Lines      int                      `json:"lines"`
	Errors     []domain.ProcessingError `json:"errors,omitempty"`
	DurationMS float64                  `json:"duration_ms"`
}

// NewFileEvent builds the event for a record.
func NewFileEvent(runID string, a domain.FileAnalysis) FileEvent {
	return FileEvent{
		RunID:      runID,
		Filename:   a.Filename,
		Status:     a.Status,
		SizeBytes:  a.Stats.SizeBytes,
		Words:      a.Stats.WordCount,
		Lines:      a.Stats.LineCount,
		Errors:     a.Errors,
		DurationMS: float64(a.ProcessingTime) / float64(time.Millisecond),
	}
}

// Publish sends a FileEvent. It implements domain.ResultPublisher.
func (c *Client) Publish(ctx context.Context, runID string, a domain.FileAnalysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.PublishJSON(SubjectFileAnalyzed, NewFileEvent(runID, a))
}

// PublishRun announces a finished run and flushes so the event is on
// the wire before the process exits.
func (c *Client) PublishRun(ctx context.Context, run domain.Run) error {
	if err := c.PublishJSON(SubjectRunFinished, run); err != nil {
		return err
	}
	return c.nc.FlushWithContext(ctx)
}
