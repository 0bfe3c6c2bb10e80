package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/hitcount/internal/config"
	"github.com/roach88/hitcount/internal/store"
)

// VisitorsResult lists the stored visitor fingerprints.
type VisitorsResult struct {
	Unique   uint32   `json:"unique"`
	Visitors []string `json:"visitors"`
}

func (r VisitorsResult) String() string {
	if len(r.Visitors) == 0 {
		return "no visitors recorded"
	}
	return strings.Join(r.Visitors, "\n")
}

// NewVisitorsCommand creates the visitors command.
func NewVisitorsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "visitors",
		Short: "List stored visitor fingerprints",
		Long: `List the hex fingerprints of every distinct visitor, in storage
order. The simple backend does not track visitors and lists none.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCounter(rootOpts, cmd, func(_ *config.Config, c store.Counter) (any, error) {
				fps, err := c.Visitors()
				if err != nil {
					return nil, err
				}
				r := VisitorsResult{Unique: c.Unique(), Visitors: make([]string, 0, len(fps))}
				for _, fp := range fps {
					r.Visitors = append(r.Visitors, fp.String())
				}
				return r, nil
			})
		},
	}
}
