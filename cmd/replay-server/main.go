package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cartridge/trajectory/internal/chunk"
	"github.com/cartridge/trajectory/internal/collector"
	"github.com/cartridge/trajectory/internal/config"
	"github.com/cartridge/trajectory/internal/events"
	"github.com/cartridge/trajectory/internal/reassembly"
	"github.com/cartridge/trajectory/internal/schema"
	"github.com/cartridge/trajectory/internal/server"
	"github.com/cartridge/trajectory/internal/store"
	"github.com/cartridge/trajectory/internal/trainer"
	"github.com/cartridge/trajectory/internal/vault"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "replay-server",
	Short: "Multi-agent trajectory replay server",
	Long: `Replay server that ingests a recorded offline dataset into a bounded
trajectory store and serves fixed-length training windows over HTTP.

Recorded chunks are reassembled into full episodes before population, and
live experience can be pushed incrementally while serving.`,
	RunE: runServer,
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Generate live experience into the trajectory store",
	Long: `Runs episodes against a synthetic environment with a random policy and
feeds the experience through the online ingestion path, as a load and smoke
harness for the replay pipeline.`,
	RunE: runCollect,
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Ingest a dataset and drive the training loop",
	Long: `Ingests the configured vault into the trajectory store and runs the
training loop against it with a diagnostics-only train step, logging and
publishing batch statistics.`,
	RunE: runTrain,
}

func init() {
	cfg = config.Default()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfg.RegistryPath, "registry", cfg.RegistryPath, "Path to the vault registry YAML")
	flags.StringVar(&cfg.Env, "env", cfg.Env, "Environment family (e.g. smac_v1)")
	flags.StringVar(&cfg.Scenario, "scenario", cfg.Scenario, "Scenario name (e.g. 3m)")
	flags.StringVar(&cfg.VaultDir, "vault-dir", cfg.VaultDir, "Local directory holding downloaded vaults")
	flags.BoolVar(&cfg.Download, "download", cfg.Download, "Download the vault archive if not present")

	flags.IntVar(&cfg.MaxSize, "max-size", cfg.MaxSize, "Buffer capacity in timesteps")
	flags.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Default sample batch size")
	flags.IntVar(&cfg.SamplePeriod, "sample-period", cfg.SamplePeriod, "Stride between valid window start offsets")
	flags.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Sampling seed")

	flags.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	flags.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Graceful shutdown timeout")
	flags.StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "NATS URL for progress events (empty disables)")
	flags.StringVar(&cfg.NATSSubject, "nats-subject", cfg.NATSSubject, "NATS subject prefix")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	flags.IntVar(&cfg.CollectEpisodes, "collect-episodes", cfg.CollectEpisodes, "Episodes to collect (-1 for unlimited)")
	flags.DurationVar(&cfg.EpisodeTimeout, "episode-timeout", cfg.EpisodeTimeout, "Timeout per collected episode (0 disables)")
	flags.IntVar(&cfg.TrainSteps, "train-steps", cfg.TrainSteps, "Train steps to run")
	flags.IntVar(&cfg.LogEvery, "log-every", cfg.LogEvery, "Log and publish metrics every N train steps")

	// Each flag binds under its mapstructure key so REPLAY_* environment
	// variables resolve, e.g. REPLAY_MAX_SIZE for --max-size.
	bindings := map[string]string{
		"registry_path":    "registry",
		"env":              "env",
		"scenario":         "scenario",
		"vault_dir":        "vault-dir",
		"download":         "download",
		"max_size":         "max-size",
		"batch_size":       "batch-size",
		"sample_period":    "sample-period",
		"seed":             "seed",
		"http_addr":        "http-addr",
		"shutdown_timeout": "shutdown-timeout",
		"nats_url":         "nats-url",
		"nats_subject":     "nats-subject",
		"log_level":        "log-level",
		"collect_episodes": "collect-episodes",
		"episode_timeout":  "episode-timeout",
		"train_steps":      "train-steps",
		"log_every":        "log-every",
	}
	for key, name := range bindings {
		viper.BindPFlag(key, flags.Lookup(name))
	}
	viper.SetEnvPrefix("REPLAY")
	viper.AutomaticEnv()

	rootCmd.AddCommand(collectCmd, trainCmd)
}

// resolveConfig merges flag and REPLAY_* environment values back into the
// config: an explicitly set flag wins, then the environment, then defaults.
func resolveConfig(c *config.Config) error {
	weak := func(dc *mapstructure.DecoderConfig) { dc.WeaklyTypedInput = true }
	if err := viper.Unmarshal(c, weak); err != nil {
		return fmt.Errorf("resolve configuration: %w", err)
	}
	return c.Validate()
}

func newLogger() (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger(), nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(logger zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("shutdown signal received")
		cancel()
	}()
	return ctx, cancel
}

// openDataset resolves the configured registry entry and its field schema.
func openDataset() (vault.DatasetInfo, *schema.Registry, error) {
	registry, err := vault.LoadRegistry(cfg.RegistryPath)
	if err != nil {
		return vault.DatasetInfo{}, nil, err
	}
	info, err := registry.Lookup(cfg.Env, cfg.Scenario)
	if err != nil {
		return vault.DatasetInfo{}, nil, err
	}
	fieldSchema, err := info.Schema()
	if err != nil {
		return vault.DatasetInfo{}, nil, err
	}
	return info, fieldSchema, nil
}

// newPublisher builds the configured event publisher and its cleanup.
func newPublisher(logger zerolog.Logger) (events.Publisher, func(), error) {
	if cfg.NATSURL == "" {
		return events.NoopPublisher{}, func() {}, nil
	}
	natsPub, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS at %s: %w", cfg.NATSURL, err)
	}
	return natsPub, natsPub.Close, nil
}

// ingestDataset downloads (if configured) and ingests the vault into a
// freshly allocated store.
func ingestDataset(
	ctx context.Context,
	logger zerolog.Logger,
	info vault.DatasetInfo,
	fieldSchema *schema.Registry,
	publisher events.Publisher,
) (*store.Store, error) {
	datasetDir := filepath.Join(cfg.VaultDir, cfg.Env, cfg.Scenario)
	if cfg.Download {
		logger.Info().Str("url", info.URL).Str("dest", datasetDir).Msg("downloading vault")
		if err := vault.Download(ctx, info, datasetDir); err != nil {
			return nil, err
		}
	}

	dec, err := chunk.NewDecoder(fieldSchema, info.SequenceLength)
	if err != nil {
		return nil, err
	}
	reasm, err := reassembly.New(fieldSchema, info.Period, info.MaxEpisodeLength)
	if err != nil {
		return nil, err
	}

	episodes, err := vault.LoadEpisodes(ctx, logger, datasetDir, dec, reasm)
	if err != nil {
		return nil, err
	}

	st, err := store.New(fieldSchema, store.Params{
		SequenceLength: info.SequenceLength,
		MaxSize:        cfg.MaxSize,
		SamplePeriod:   cfg.SamplePeriod,
		Seed:           cfg.Seed,
	})
	if err != nil {
		return nil, err
	}
	if err := st.BulkPopulate(episodes); err != nil {
		return nil, err
	}

	stats := st.Stats()
	logger.Info().
		Int("timesteps", stats.Size).
		Uint64("episodes", stats.Episodes).
		Msg("store populated")
	if err := publisher.PublishIngest(ctx, events.IngestEvent{
		Environment: cfg.Env,
		Scenario:    cfg.Scenario,
		Episodes:    stats.Episodes,
		Timesteps:   stats.Size,
		TotalWrites: stats.TotalWrites,
	}); err != nil {
		logger.Warn().Err(err).Msg("failed to publish ingest event")
	}
	return st, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := resolveConfig(cfg); err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(logger)
	defer cancel()

	info, fieldSchema, err := openDataset()
	if err != nil {
		return err
	}
	publisher, closePublisher, err := newPublisher(logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	st, err := ingestDataset(ctx, logger, info, fieldSchema, publisher)
	if err != nil {
		return err
	}

	acc := store.NewAccumulator(st)
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.NewServer(st, acc, logger).Routes(),
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("replay server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}
	logger.Info().Msg("server stopped gracefully")
	return nil
}

func runCollect(cmd *cobra.Command, args []string) error {
	if err := resolveConfig(cfg); err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(logger)
	defer cancel()

	info, fieldSchema, err := openDataset()
	if err != nil {
		return err
	}
	publisher, closePublisher, err := newPublisher(logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	st, err := store.New(fieldSchema, store.Params{
		SequenceLength: info.SequenceLength,
		MaxSize:        cfg.MaxSize,
		SamplePeriod:   cfg.SamplePeriod,
		Seed:           cfg.Seed,
	})
	if err != nil {
		return err
	}
	acc := store.NewAccumulator(st)

	env, err := collector.NewSynthetic(fieldSchema, info.MaxEpisodeLength, cfg.Seed)
	if err != nil {
		return err
	}
	defer env.Close()
	policy := collector.NewRandom(fieldSchema, cfg.Seed)

	col := collector.New(collector.Config{
		MaxEpisodes:      cfg.CollectEpisodes,
		EpisodeTimeout:   cfg.EpisodeTimeout,
		MaxEpisodeLength: info.MaxEpisodeLength,
	}, env, policy, acc, publisher, logger)

	logger.Info().
		Int("episodes", cfg.CollectEpisodes).
		Str("env", cfg.Env).
		Str("scenario", cfg.Scenario).
		Msg("collection started")
	if err := col.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	stats := st.Stats()
	logger.Info().
		Int("episodes", col.Episodes()).
		Uint64("timesteps", stats.TotalWrites).
		Msg("collection finished")
	return nil
}

func runTrain(cmd *cobra.Command, args []string) error {
	if err := resolveConfig(cfg); err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(logger)
	defer cancel()

	info, fieldSchema, err := openDataset()
	if err != nil {
		return err
	}
	publisher, closePublisher, err := newPublisher(logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	st, err := ingestDataset(ctx, logger, info, fieldSchema, publisher)
	if err != nil {
		return err
	}

	loop, err := trainer.New(trainer.Config{
		BatchSize: cfg.BatchSize,
		LogEvery:  cfg.LogEvery,
	}, st, trainer.NewDiagnosticStep(), publisher, logger)
	if err != nil {
		return err
	}

	logger.Info().Int("steps", cfg.TrainSteps).Msg("training started")
	if err := loop.Run(ctx, cfg.TrainSteps); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("training finished")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
