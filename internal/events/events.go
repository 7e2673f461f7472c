package events

import "context"

// Publisher is implemented by downstream fan-out mechanisms.
type Publisher interface {
	PublishIngest(ctx context.Context, payload IngestEvent) error
	PublishTraining(ctx context.Context, payload TrainingEvent) error
}

// IngestEvent is emitted when a dataset finishes populating the store, and
// periodically during online collection.
type IngestEvent struct {
	Environment string `json:"environment"`
	Scenario    string `json:"scenario"`
	Episodes    uint64 `json:"episodes"`
	Timesteps   int    `json:"timesteps"`
	TotalWrites uint64 `json:"total_writes"`
}

// TrainingEvent tracks training-loop progress.
type TrainingEvent struct {
	Step    int                `json:"step"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// NoopPublisher publishes nothing; useful for tests and broker-less runs.
type NoopPublisher struct{}

// PublishIngest satisfies Publisher.
func (NoopPublisher) PublishIngest(context.Context, IngestEvent) error { return nil }

// PublishTraining satisfies Publisher.
func (NoopPublisher) PublishTraining(context.Context, TrainingEvent) error { return nil }
