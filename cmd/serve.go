package cmd

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bavix/scanbridge/internal/adminhttp"
	"github.com/bavix/scanbridge/internal/metrics"
	"github.com/bavix/scanbridge/internal/scanner"
	"github.com/bavix/scanbridge/internal/version"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scanner service and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := zerolog.Ctx(ctx)

			log.Info().
				Str("version", version.GetVersion()).
				Str("build_time", version.GetBuildTime()).
				Msg("scanbridge starting")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			metrics.RegisterCollectors()
			log.Info().Str("config", cfg.Path).Msg("starting")

			svc, err := scanner.New(ctx, cfg, scanner.DefaultHosts(cfg))
			if err != nil {
				return err
			}

			if err := svc.Start(ctx); err != nil {
				return err
			}

			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()

				if err := svc.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("shutdown")
				}
			}()

			if cfg.HTTP.Enabled {
				admin := adminhttp.NewServer(&cfg.HTTP, svc)
				if err := admin.Start(ctx); err != nil {
					return err
				}
			}

			if _, err := svc.ListDevices(ctx); err != nil {
				log.Warn().Err(err).Msg("initial discovery failed")
			}

			<-ctx.Done()

			log.Info().Msg("scanbridge stopping")

			return nil
		},
	}
}
