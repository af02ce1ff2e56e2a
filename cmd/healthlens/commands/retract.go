package commands

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/healthlens/healthlens-go/internal/facts"
	"github.com/healthlens/healthlens-go/internal/logging"
)

// NewRetractCmd constructs the `healthlens retract` command, which removes
// an owner's facts matching a metadata key and value.
func NewRetractCmd() *cobra.Command {
	var owner, recordType, key, value string

	cmd := &cobra.Command{
		Use:   "retract",
		Short: "Remove an owner's facts by record type and metadata",
		Long: `Remove every fact of one owner whose record type and metadata match.

--key defaults to the identifying key of the record type (appointment_id for
appointments, medication_id for medications, and so on). Retracting facts
that do not exist succeeds.

Examples:
  healthlens retract --owner 1 --type appointment --value 42
  healthlens retract --owner 1 --type sleep_summary --key summary_window --value last_30`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if owner == "" {
				return fmt.Errorf("retract: %w", errOwnerRequired)
			}
			t, err := facts.ParseRecordType(recordType)
			if err != nil {
				return fmt.Errorf("retract: %w", err)
			}
			if key == "" {
				key = t.RetractKey()
			}

			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			st, err := openIndexStack(ctx, log)
			if err != nil {
				return fmt.Errorf("retract: %w", err)
			}
			defer st.Close()
			p, err := st.newPipeline(prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("retract: %w", err)
			}

			if out := p.Retract(ctx, owner, t, key, value); out.Err != nil {
				return out.Err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "retracted %s facts where %s=%s\n", t, key, value)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner id (required)")
	cmd.Flags().StringVarP(&recordType, "type", "t", "", "Record type (required)")
	cmd.Flags().StringVarP(&key, "key", "k", "", "Metadata key (default: the record type's identifying key)")
	cmd.Flags().StringVarP(&value, "value", "v", "", "Metadata value (required)")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("value")

	return cmd
}
