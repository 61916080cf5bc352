package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scenegen/internal/domain"
)

func newStylesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "styles",
		Short: "List the suggested values for --style",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for i, style := range domain.Styles {
				marker := ""
				if style == domain.DefaultStyle {
					marker = " (default)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s%s\n", i+1, style, marker)
			}
			return nil
		},
	}
}
