package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bavix/scanbridge/internal/config"
	"github.com/bavix/scanbridge/internal/logging"
	"github.com/bavix/scanbridge/internal/metrics"
	verpkg "github.com/bavix/scanbridge/internal/version"
)

var (
	cfgFile   string //nolint:gochecknoglobals // cobra command flag
	logLevel  string //nolint:gochecknoglobals // cobra command flag
	logFormat string //nolint:gochecknoglobals // cobra command flag
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "scanbridge",
		Short:         "Barcode scanner bridge: discover scanners, read codes, resolve products",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			base := logging.Base(config.DefaultAppName, logLevel, logFormat)
			ctx := base.WithContext(cmd.Context())
			cmd.SetContext(ctx)

			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to config file (default: built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format: json, console")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newDevicesCmd())
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newCheckCmd())

	rootCmd.Version = verpkg.GetVersion()
	rootCmd.SetVersionTemplate("scanbridge " + verpkg.GetVersion() + "\n")

	return rootCmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func ExecuteContext(ctx context.Context) {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config, or the defaults when it is not set, and binds the
// metrics service label.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	metrics.SetService(cfg.AppName)
	metrics.BindService()

	return cfg, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
