package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bavix/scanbridge/internal/scanner"
)

func newDevicesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Run one discovery pass and list the scanners found",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			svc, err := scanner.New(ctx, cfg, scanner.DefaultHosts(cfg))
			if err != nil {
				return err
			}

			list, err := svc.ListDevices(ctx)
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(cmd.OutOrStdout(), list)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tTRANSPORT\tNAME\tQUALITY\tRECOMMENDED")

			for _, d := range list {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", d.ID, d.Kind, d.DisplayName, d.QualityTier, d.Recommended)
			}

			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print descriptors as JSON")

	return cmd
}
