package cli

import (
	"github.com/spf13/cobra"
)

// FingerprintResult is the output of the fingerprint command.
type FingerprintResult struct {
	Identifier  string `json:"identifier"`
	Fingerprint string `json:"fingerprint"`
	Normalized  bool   `json:"normalized"`
}

func (r FingerprintResult) String() string {
	return r.Fingerprint
}

// NewFingerprintCommand creates the fingerprint command.
func NewFingerprintCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <identifier>",
		Short: "Print the fingerprint stored for a visitor",
		Long: `Print the hex BLAKE2s-256 fingerprint that visit would store for
identifier. No counter file is opened.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			h := cfg.Hasher()

			return newFormatter(rootOpts, cmd).Success(FingerprintResult{
				Identifier:  args[0],
				Fingerprint: h.Sum(args[0]).String(),
				Normalized:  h.Normalizes(),
			})
		},
	}
}
