package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/hitcount/internal/config"
	"github.com/roach88/hitcount/internal/store"
)

// NewHitCommand creates the hit command.
func NewHitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hit",
		Short: "Record one anonymous hit",
		Long: `Record one hit without a visitor identifier and print the totals.

Examples:
  hitcount hit
  hitcount hit --file /var/lib/hits.dat --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCounter(rootOpts, cmd, func(cfg *config.Config, c store.Counter) (any, error) {
				if err := c.RecordHit(); err != nil {
					return nil, err
				}
				return countResult(cfg, c), nil
			})
		},
	}
}
