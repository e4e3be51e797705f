package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tensorplex-labs/drsweep/internal/config"
	"github.com/tensorplex-labs/drsweep/internal/dataset"
	"github.com/tensorplex-labs/drsweep/internal/embedding"
	"github.com/tensorplex-labs/drsweep/internal/paramset"
	"github.com/tensorplex-labs/drsweep/internal/store"
	"github.com/tensorplex-labs/drsweep/internal/sweep"
	"github.com/tensorplex-labs/drsweep/internal/utils/redis"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run (or resume) a sweep",
		RunE:  runSweep,
	}
	f := cmd.Flags()
	f.String("dataset", "", "Dataset name (swiss_roll, s_curve or a label for --data)")
	f.String("data", "", "CSV file with one point per row")
	f.String("kernel", "", "Embedding kernel: mds, smacof or remote")
	f.String("grid", "", "YAML hyperparameter grid")
	f.StringSlice("metrics", nil, "Distance metrics to sweep")
	f.Int("workers", 0, "Concurrent workers (default: number of CPUs)")
	f.Int("checkpoint", 0, "Results persisted per batch")
	f.Uint64("seed", 0, "Seed for dataset generation and work distribution")
	f.Bool("geodesic", false, "Score stress against geodesic distances")
	f.String("store-dir", "", "Directory holding the result databases")
	f.String("report", "", "Write the run report to this JSON file")
	return cmd
}

// applyFlags overrides environment values with the flags given explicitly.
func applyFlags(cmd *cobra.Command, cfg *config.AppConfig) {
	f := cmd.Flags()
	if f.Changed("dataset") {
		cfg.Dataset, _ = f.GetString("dataset")
	}
	if f.Changed("data") {
		cfg.DatasetPath, _ = f.GetString("data")
	}
	if f.Changed("kernel") {
		cfg.Kernel, _ = f.GetString("kernel")
	}
	if f.Changed("grid") {
		cfg.GridFile, _ = f.GetString("grid")
	}
	if f.Changed("metrics") {
		cfg.Metrics, _ = f.GetStringSlice("metrics")
	}
	if f.Changed("workers") {
		cfg.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("checkpoint") {
		cfg.CheckpointSize, _ = f.GetInt("checkpoint")
	}
	if f.Changed("seed") {
		cfg.Seed, _ = f.GetUint64("seed")
	}
	if f.Changed("geodesic") {
		cfg.GeodesicStress, _ = f.GetBool("geodesic")
	}
	if f.Changed("store-dir") {
		cfg.StoreDir, _ = f.GetString("store-dir")
	}
	if f.Changed("report") {
		cfg.ReportPath, _ = f.GetString("report")
	}
}

func loadGrid(cfg *config.AppConfig) (paramset.Grid, error) {
	if cfg.GridFile == "" {
		log.Info().Str("kernel", cfg.Kernel).Msg("no grid file configured, using the default grid")
		return config.DefaultGrid(cfg.Kernel), nil
	}
	return config.LoadGrid(cfg.GridFile)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load environment configuration: %w", err)
	}
	applyFlags(cmd, cfg)

	grid, err := loadGrid(cfg)
	if err != nil {
		return err
	}
	data, err := dataset.Load(dataset.Spec{
		Name:    cfg.Dataset,
		Path:    cfg.DatasetPath,
		Points:  cfg.SyntheticPoints,
		Seed:    cfg.Seed,
		Scaling: cfg.Scaling,
	})
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}

	embedder, err := embedding.New(cfg.Kernel, cfg.RemoteConfig())
	if err != nil {
		return err
	}
	if remote, ok := embedder.(*embedding.Remote); ok {
		defer remote.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	st, err := store.Open(ctx, store.Path(cfg.StoreDir, cfg.Dataset, cfg.KernelIdentity()), cfg.Dataset, cfg.KernelIdentity())
	if err != nil {
		return err
	}
	defer st.Close()

	var opts []sweep.RunnerOption
	if cfg.RedisEnabled {
		r, err := redis.NewRedis(&cfg.RedisEnvConfig)
		if err != nil {
			log.Error().Err(err).Msg("failed to init redis client, continuing without progress publishing")
		} else {
			defer r.Close()
			opts = append(opts, sweep.WithProgress(sweep.NewRedisProgress(r, cfg.RedisKeyPrefix, cfg.RedisProgressTTL)))
		}
	}

	runner, err := sweep.NewRunner(cfg.SweepConfig(grid), data, embedder, st, opts...)
	if err != nil {
		return err
	}

	log.Info().
		Str("run_id", runner.RunID()).
		Str("dataset", cfg.Dataset).
		Str("kernel", embedder.Name()).
		Str("store", st.Path()).
		Msg("starting sweep")

	report, err := runner.Run(ctx)
	if err != nil {
		log.Error().Err(err).Str("run_id", report.RunID).Msg("sweep stopped")
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d succeeded, %d failed, %d resumed\n",
		report.RunID, len(report.Succeeded), len(report.Failed), report.Resumed)
	return nil
}
