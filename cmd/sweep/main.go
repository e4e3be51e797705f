package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tensorplex-labs/drsweep/internal/utils/logger"
)

var (
	debug bool
	trace bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Hyperparameter sweeps scored by structural fidelity",
		Long: "sweep embeds a dataset once per hyperparameter combination, scores every " +
			"embedding against the original distances and stores the results in SQLite",
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logger.Init(debug, trace)
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&trace, "trace", false, "Enable trace logging")

	rootCmd.AddCommand(newRunCmd(), newStatusCmd(), newExportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
