package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	customerrors "github.com/bavix/scanbridge/internal/errors"
	"github.com/bavix/scanbridge/internal/resolver"
	"github.com/bavix/scanbridge/internal/scanner"
	"github.com/bavix/scanbridge/internal/session"
)

var (
	errDeviceRequired = errors.New("--device is required")
	errScanStopped    = errors.New("scan stopped before a result")
)

type scanOutput struct {
	Result  session.ScanResult        `json:"result"`
	Product *resolver.ResolvedProduct `json:"product,omitempty"`
}

func newScanCmd() *cobra.Command { //nolint:funlen
	var (
		deviceID string
		timeout  time.Duration
		resolve  bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Connect a device, read one code and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := zerolog.Ctx(ctx)

			if deviceID == "" {
				return errDeviceRequired
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			cfg.Scanner.ScanTimeout = timeout
			cfg.Scanner.KeepConnection = false

			svc, err := scanner.New(ctx, cfg, scanner.DefaultHosts(cfg))
			if err != nil {
				return err
			}

			defer func() { _ = svc.Shutdown(context.WithoutCancel(ctx)) }()

			if err := svc.Connect(ctx, deviceID); err != nil {
				return err
			}

			ch, err := svc.StartScan(ctx)
			if err != nil {
				return err
			}

			log.Info().Str("device", deviceID).Dur("timeout", timeout).Msg("waiting for a barcode")

			var (
				res session.ScanResult
				ok  bool
			)

			select {
			case res, ok = <-ch:
			case <-ctx.Done():
				svc.StopScan()

				return ctx.Err()
			}

			if !ok {
				return errScanStopped
			}

			out := scanOutput{Result: res}

			if resolve && res.Success {
				p, err := svc.Resolve(ctx, res.Barcode)
				if err != nil && !errors.Is(err, customerrors.ErrProductNotFound) {
					return err
				}

				out.Product = &p
			}

			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVarP(&deviceID, "device", "d", "", "Device id as listed by the devices command")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Fail the scan when no code is read in time (0 waits forever)")
	cmd.Flags().BoolVar(&resolve, "resolve", false, "Resolve the scanned code to a product")

	return cmd
}
