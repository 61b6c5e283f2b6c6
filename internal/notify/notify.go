// Package notify announces change batches to downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/roach88/tramites/internal/diff"
)

// Batch is the payload published after a run that detected changes.
type Batch struct {
	RunID         string              `json:"run_id"`
	Timestamp     string              `json:"timestamp"`
	Arrivals      int                 `json:"arrivals"`
	Departures    int                 `json:"departures"`
	Events        []diff.Event        `json:"events"`
	Modifications []diff.Modification `json:"modifications"`
}

// NewBatch builds a batch from a detection result.
func NewBatch(runID string, res *diff.Result) Batch {
	b := Batch{
		RunID:         runID,
		Timestamp:     res.Timestamp,
		Arrivals:      res.Count(diff.Aparece),
		Departures:    res.Count(diff.Desaparece),
		Events:        res.Events,
		Modifications: res.Modifications,
	}
	if b.Events == nil {
		b.Events = []diff.Event{}
	}
	if b.Modifications == nil {
		b.Modifications = []diff.Modification{}
	}
	return b
}

// Empty reports whether the batch carries no changes.
func (b Batch) Empty() bool {
	return len(b.Events) == 0 && len(b.Modifications) == 0
}

// Publisher delivers batches.
type Publisher interface {
	Publish(ctx context.Context, b Batch) error
	Close()
}

// Noop discards every batch.
type Noop struct{}

func (Noop) Publish(context.Context, Batch) error { return nil }
func (Noop) Close()                               {}

// Options configures a NATSPublisher.
type Options struct {
	URL           string
	Subject       string
	MaxReconnect  int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// NATSPublisher publishes batches as JSON messages on a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  logrus.FieldLogger
}

// NewNATSPublisher connects to the NATS server in opts.URL.
func NewNATSPublisher(opts Options, logger logrus.FieldLogger) (*NATSPublisher, error) {
	if opts.Subject == "" {
		return nil, fmt.Errorf("nats: empty subject")
	}

	natsOpts := []nats.Option{
		nats.Name("tramites"),
		nats.MaxReconnects(opts.MaxReconnect),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Debug("NATS connection closed")
		}),
	}
	if opts.Timeout > 0 {
		natsOpts = append(natsOpts, nats.Timeout(opts.Timeout))
	}

	conn, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Infof("Connected to NATS at %s", opts.URL)

	return &NATSPublisher{
		conn:    conn,
		subject: opts.Subject,
		logger:  logger,
	}, nil
}

// Publish sends b and flushes so that a failure surfaces before the run ends.
func (p *NATSPublisher) Publish(ctx context.Context, b Batch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish to NATS: %w", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush NATS: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"subject":       p.subject,
		"events":        len(b.Events),
		"modifications": len(b.Modifications),
	}).Debug("published change batch")
	return nil
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
