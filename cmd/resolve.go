package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	customerrors "github.com/bavix/scanbridge/internal/errors"
	"github.com/bavix/scanbridge/internal/resolver"
	"github.com/bavix/scanbridge/internal/scanner"
)

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve CODE...",
		Short: "Resolve codes against the catalog, the remote lookup and the not-found policy",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			svc, err := scanner.New(ctx, cfg, scanner.Hosts{})
			if err != nil {
				return err
			}

			out := make([]resolver.ResolvedProduct, 0, len(args))

			for _, code := range args {
				p, err := svc.Resolve(ctx, code)
				if err != nil && !errors.Is(err, customerrors.ErrProductNotFound) {
					return err
				}

				out = append(out, p)
			}

			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}
