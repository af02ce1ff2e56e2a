package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/healthlens/healthlens-go/internal/ingestion"
	"github.com/healthlens/healthlens-go/internal/logging"
)

// NewRebuildCmd constructs the `healthlens rebuild` command, which re-derives
// every fact of one or more owners from the records store.
func NewRebuildCmd() *cobra.Command {
	var owners []string

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Re-derive owners' facts from the records store",
		Long: `Re-derive every fact of the given owners from the records store.

Rebuild renders each profile, appointment, active medication and health
record, and recomputes the sleep, activity and vitals summaries. Facts are
content addressed, so rebuilding unchanged records rewrites the same facts.

Examples:
  healthlens rebuild --owner 1
  healthlens rebuild --owner 1 --owner 2`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(owners) == 0 {
				return fmt.Errorf("rebuild: %w", errOwnerRequired)
			}
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			st, err := openIndexStack(ctx, log)
			if err != nil {
				return fmt.Errorf("rebuild: %w", err)
			}
			defer st.Close()
			if err := st.openRecords(); err != nil {
				return fmt.Errorf("rebuild: %w", err)
			}
			rb, err := st.newRebuilder()
			if err != nil {
				return fmt.Errorf("rebuild: %w", err)
			}

			failed := 0
			for _, owner := range owners {
				if err := runRebuild(ctx, cmd.OutOrStdout(), rb, owner); err != nil {
					log.Error("rebuild failed", slog.String("owner_id", owner), slog.Any("error", err))
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("rebuild: %d of %d owners had failures", failed, len(owners))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&owners, "owner", nil, "Owner id to rebuild (repeatable)")

	return cmd
}

// newRebuilder builds a Rebuilder; openRecords must have been called.
func (st *stack) newRebuilder() (*ingestion.Rebuilder, error) {
	ix, err := st.newIndexer(prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	return ingestion.NewRebuilder(ix)
}

// runRebuild rebuilds owner and prints its report.
func runRebuild(ctx context.Context, w io.Writer, rb *ingestion.Rebuilder, owner string) error {
	report, err := rb.Rebuild(ctx, owner)
	if report != nil {
		fmt.Fprintf(w, "owner %s: %d written, %d skipped, %d failed (%s)\n",
			owner, report.Written, report.Skipped, report.Failed, report.Duration.Round(1e6))
	}
	return err
}
