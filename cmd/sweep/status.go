package main

import (
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tensorplex-labs/drsweep/internal/config"
	"github.com/tensorplex-labs/drsweep/internal/dataset"
	"github.com/tensorplex-labs/drsweep/internal/store"
	"github.com/tensorplex-labs/drsweep/internal/sweep"
	"github.com/tensorplex-labs/drsweep/internal/utils/redis"
)

func openStore(cmd *cobra.Command) (*store.SQLiteStore, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load environment configuration: %w", err)
	}
	applyFlags(cmd, cfg)

	path := store.Path(cfg.StoreDir, cfg.Dataset, cfg.KernelIdentity())
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no results for dataset %q and kernel %q: %w", cfg.Dataset, cfg.KernelIdentity(), err)
	}
	return store.Open(cmd.Context(), path, cfg.Dataset, cfg.KernelIdentity())
}

func storeFlags(cmd *cobra.Command) {
	cmd.Flags().String("dataset", "", "Dataset name")
	cmd.Flags().String("kernel", "", "Embedding kernel")
	cmd.Flags().String("store-dir", "", "Directory holding the result databases")
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show how many results a store holds and which run wrote last",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			status, err := st.Status(cmd.Context())
			if err != nil {
				return err
			}
			out, err := sonic.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return printProgress(cmd, status.LastRunID)
		},
	}
	storeFlags(cmd)
	return cmd
}

// printProgress shows the last progress event of runID when Redis progress
// publishing is enabled.
func printProgress(cmd *cobra.Command, runID string) error {
	cfg, err := config.LoadConfig()
	if err != nil || !cfg.RedisEnabled || runID == "" {
		return err
	}
	r, err := redis.NewRedis(&cfg.RedisEnvConfig)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, skipping progress")
		return nil
	}
	defer r.Close()

	ev, events, ok, err := sweep.NewRedisProgress(r, cfg.RedisKeyPrefix, cfg.RedisProgressTTL).Latest(cmd.Context(), runID)
	if err != nil || !ok {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d/%d persisted, %d failed, %d checkpoints, last at %s\n",
		runID, ev.Persisted, ev.Expected, ev.Failed, events, ev.At.Format(time.RFC3339))
	return nil
}

func newExportCmd() *cobra.Command {
	var (
		id  int64
		out string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored embedding of one parameter set as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			coords, err := st.Coordinates(cmd.Context(), id)
			if err != nil {
				return err
			}
			if out == "" {
				return dataset.WriteCSV(cmd.OutOrStdout(), coords)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := dataset.WriteCSV(f, coords); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	storeFlags(cmd)
	cmd.Flags().Int64Var(&id, "id", 0, "Parameter set id")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default: stdout)")
	return cmd
}
