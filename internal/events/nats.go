package events

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSPublisher implements Publisher using NATS.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSPublisher creates a new NATS-backed publisher.
func NewNATSPublisher(natsURL, subject string, logger zerolog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, err
	}

	return &NATSPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}, nil
}

// Close closes the NATS connection.
func (n *NATSPublisher) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

// PublishIngest publishes ingest events to <subject>.ingest.
func (n *NATSPublisher) PublishIngest(ctx context.Context, event IngestEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject+".ingest", data); err != nil {
		n.logger.Error().Err(err).Str("subject", n.subject+".ingest").Msg("Failed to publish ingest event")
		return err
	}
	return nil
}

// PublishTraining publishes training progress to <subject>.training.
func (n *NATSPublisher) PublishTraining(ctx context.Context, event TrainingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject+".training", data); err != nil {
		n.logger.Error().Err(err).Str("subject", n.subject+".training").Msg("Failed to publish training event")
		return err
	}
	return nil
}
