package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/healthlens/healthlens-go/internal/version"
)

// NewVersionCmd constructs the `healthlens version` subcommand. Values are
// injected at build time via -ldflags.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the healthlens version, git commit, and build date",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
