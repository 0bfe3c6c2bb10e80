package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/hitcount/internal/config"
	"github.com/roach88/hitcount/internal/store"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the counter totals",
		Long: `Open the counter, print its totals and close it without recording
anything. Opening still creates a missing counter and migrates an old one.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCounter(rootOpts, cmd, func(cfg *config.Config, c store.Counter) (any, error) {
				return countResult(cfg, c), nil
			})
		},
	}
}
