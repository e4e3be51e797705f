package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tensorplex-labs/drsweep/internal/config"
	"github.com/tensorplex-labs/drsweep/internal/embedserver"
	"github.com/tensorplex-labs/drsweep/internal/utils/logger"
)

func main() {
	var debug, trace bool
	cmd := &cobra.Command{
		Use:          "embedserver",
		Short:        "Serve the embedding kernels over HTTP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger.Init(debug, trace)

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			server := embedserver.New(embedserver.Config{
				Host:      cfg.Address,
				Port:      cfg.Port,
				BodyLimit: cfg.BodySizeLimit,
			})

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigChan
				log.Info().Msg("shutdown signal received, stopping embedding service")
				if err := server.Shutdown(); err != nil {
					log.Error().Err(err).Msg("shutdown failed")
				}
			}()

			return server.Start()
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&trace, "trace", false, "Enable trace logging")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
