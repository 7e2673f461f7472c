package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cartridge/trajectory/internal/events"
	"github.com/cartridge/trajectory/internal/store"
	"github.com/cartridge/trajectory/internal/types"
)

// Config controls the collection loop.
type Config struct {
	// MaxEpisodes stops the loop after this many episodes; -1 means
	// unlimited.
	MaxEpisodes int
	// EpisodeTimeout bounds a single episode.
	EpisodeTimeout time.Duration
	// MaxEpisodeLength truncates an episode that never terminates; 0 means
	// no cutoff.
	MaxEpisodeLength int
}

// Collector drives an environment with a policy and accumulates the
// experience into the store's online ingestion path.
type Collector struct {
	cfg       Config
	env       Environment
	policy    Policy
	acc       *store.Accumulator
	publisher events.Publisher
	logger    zerolog.Logger

	episodeCount int
}

// New creates a collector. The publisher may be events.NoopPublisher{}.
func New(cfg Config, env Environment, policy Policy, acc *store.Accumulator, publisher events.Publisher, logger zerolog.Logger) *Collector {
	return &Collector{
		cfg:       cfg,
		env:       env,
		policy:    policy,
		acc:       acc,
		publisher: publisher,
		logger:    logger,
	}
}

// Run executes episodes until the context is cancelled or the episode limit
// is reached.
func (c *Collector) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("context cancelled, stopping collector")
			return ctx.Err()
		default:
		}

		if c.cfg.MaxEpisodes > 0 && c.episodeCount >= c.cfg.MaxEpisodes {
			c.logger.Info().Int("episodes", c.episodeCount).Msg("reached episode limit, stopping")
			return nil
		}

		if err := c.runEpisode(ctx); err != nil {
			return err
		}
		c.episodeCount++
	}
}

// Episodes returns how many episodes have completed.
func (c *Collector) Episodes() int {
	return c.episodeCount
}

// runEpisode plays one episode to termination, truncation or the length
// cutoff, feeding every step into the accumulator.
func (c *Collector) runEpisode(ctx context.Context) error {
	episodeCtx := ctx
	if c.cfg.EpisodeTimeout > 0 {
		var cancel context.CancelFunc
		episodeCtx, cancel = context.WithTimeout(ctx, c.cfg.EpisodeTimeout)
		defer cancel()
	}

	cur, err := c.env.Reset(episodeCtx)
	if err != nil {
		return fmt.Errorf("collector: reset environment: %w", err)
	}

	steps := 0
	var episodeReturn float32
	for {
		actions, err := c.policy.SelectActions(cur.Observations, cur.Legals)
		if err != nil {
			return fmt.Errorf("collector: select actions: %w", err)
		}

		next, err := c.env.Step(episodeCtx, actions)
		if err != nil {
			return fmt.Errorf("collector: step environment: %w", err)
		}

		ts := types.Timestep{
			Observations: cur.Observations,
			Actions:      actions,
			Rewards:      next.Rewards,
			Terminals:    next.Terminals,
			Truncations:  next.Truncations,
			Legals:       cur.Legals,
			State:        cur.State,
			Mask:         1,
		}
		if err := c.acc.Add(ts); err != nil {
			return fmt.Errorf("collector: add timestep: %w", err)
		}
		steps++
		for _, r := range next.Rewards {
			episodeReturn += r
		}

		if next.Done() || (c.cfg.MaxEpisodeLength > 0 && steps >= c.cfg.MaxEpisodeLength) {
			if err := c.acc.EndOfEpisode(); err != nil {
				return fmt.Errorf("collector: end of episode: %w", err)
			}
			break
		}
		cur = next
	}

	c.logger.Info().
		Int("episode", c.episodeCount+1).
		Int("steps", steps).
		Float32("return", episodeReturn).
		Msg("episode completed")

	if err := c.publisher.PublishIngest(ctx, events.IngestEvent{
		Episodes:  uint64(c.episodeCount + 1),
		Timesteps: steps,
	}); err != nil {
		c.logger.Warn().Err(err).Msg("failed to publish ingest event")
	}
	return nil
}
