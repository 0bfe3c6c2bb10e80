package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/hitcount/internal/config"
	"github.com/roach88/hitcount/internal/store"
)

// NewVisitCommand creates the visit command.
func NewVisitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "visit <identifier>",
		Short: "Record a hit from an identified visitor",
		Long: `Record a hit from the visitor named by identifier (an IP address,
session id or any other string). The unique count grows the first time a
visitor is seen. Only the identifier's fingerprint is stored.

Examples:
  hitcount visit 203.0.113.7
  hitcount visit "$SESSION_ID" --backend sqlite --file hits.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCounter(rootOpts, cmd, func(cfg *config.Config, c store.Counter) (any, error) {
				seen, err := c.RecordVisitor(args[0])
				if err != nil {
					return nil, err
				}
				r := countResult(cfg, c)
				r.Seen = &seen
				return r, nil
			})
		},
	}
}
