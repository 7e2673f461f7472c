// Package trainer drives the training loop: sample a batch, hand it to the
// learner's train step, log and publish the returned metrics. The learner
// itself (networks, losses) lives behind the TrainStep interface and is not
// this package's concern.
package trainer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cartridge/trajectory/internal/events"
	"github.com/cartridge/trajectory/internal/types"
)

// TrainStep consumes one sampled batch and returns scalar metrics.
type TrainStep interface {
	Step(ctx context.Context, batch types.Batch) (map[string]float64, error)
}

// Sampler is the slice of the trajectory store the loop needs.
type Sampler interface {
	Sample(batchSize int) (types.Batch, error)
}

// Config controls the loop.
type Config struct {
	BatchSize int
	// LogEvery controls how often metrics are logged and published; every
	// step when 1.
	LogEvery int
}

// Loop runs train steps against a sampler.
type Loop struct {
	cfg       Config
	sampler   Sampler
	step      TrainStep
	publisher events.Publisher
	logger    zerolog.Logger
}

// New creates a training loop. The publisher may be events.NoopPublisher{}.
func New(cfg Config, sampler Sampler, step TrainStep, publisher events.Publisher, logger zerolog.Logger) (*Loop, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("trainer: batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 1
	}
	return &Loop{
		cfg:       cfg,
		sampler:   sampler,
		step:      step,
		publisher: publisher,
		logger:    logger,
	}, nil
}

// Run executes the given number of train steps, or until the context is
// cancelled.
func (l *Loop) Run(ctx context.Context, steps int) error {
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := l.sampler.Sample(l.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("trainer: sample batch: %w", err)
		}
		metrics, err := l.step.Step(ctx, batch)
		if err != nil {
			return fmt.Errorf("trainer: step %d: %w", i, err)
		}

		if (i+1)%l.cfg.LogEvery == 0 {
			ev := l.logger.Info().Int("step", i+1)
			for k, v := range metrics {
				ev = ev.Float64(k, v)
			}
			ev.Msg("train step")

			if err := l.publisher.PublishTraining(ctx, events.TrainingEvent{
				Step:    i + 1,
				Metrics: metrics,
			}); err != nil {
				l.logger.Warn().Err(err).Msg("failed to publish training event")
			}
		}
	}
	return nil
}
