// Package commands defines all Cobra CLI commands for the healthlens binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/healthlens/healthlens-go/internal/audit"
	"github.com/healthlens/healthlens-go/internal/config"
	"github.com/healthlens/healthlens-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "healthlens",
		Short: "HealthLens: grounded health insights over each user's own records",
		Long: `HealthLens indexes each user's health records as facts in a vector store
and answers natural-language questions about them with an LLM. Retrieval is
always scoped to one owner; an answer never draws on another user's data.

Model, embedding, reranking and index backends are selected with environment
variables or a YAML config file (~/.healthlens/config.yaml).
See 'healthlens --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Env vars always override YAML values.
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.healthlens/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewAskCmd(),
		NewIngestCmd(),
		NewRetractCmd(),
		NewRebuildCmd(),
		NewRecordsCmd(),
		NewVersionCmd(),
	)

	return root
}
