package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bavix/scanbridge/internal/symbology"
)

var errInvalidCodes = errors.New("invalid codes")

type validateOutput struct {
	Code string `json:"code"`
	symbology.ValidationResult
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate CODE...",
		Short: "Classify codes by symbology and verify check digits",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			invalid := 0
			out := make([]validateOutput, 0, len(args))

			for _, code := range args {
				v := symbology.Validate(code)
				if !v.IsValid {
					invalid++
				}

				out = append(out, validateOutput{Code: code, ValidationResult: v})
			}

			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}

			if invalid > 0 {
				return fmt.Errorf("%w: %d of %d", errInvalidCodes, invalid, len(args))
			}

			return nil
		},
	}
}
