package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/healthlens/healthlens-go/internal/insight"
	"github.com/healthlens/healthlens-go/internal/logging"
)

// NewAskCmd constructs the `healthlens ask` command, which answers one
// question about one owner's indexed facts and prints the answer.
func NewAskCmd() *cobra.Command {
	var owner, clinician string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about one owner's health data",
		Long: `Answer a natural-language question grounded in one owner's indexed facts.

With --clinician the answer is framed for a clinician asking about the owner
as their patient. Retrieval is scoped to --owner either way.

Examples:
  healthlens ask --owner 1 "What medications am I taking?"
  healthlens ask --owner 1 --clinician dr-5 "Any concerns before the follow-up?"
  healthlens ask --owner 1 --json "How has my sleep been?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				return fmt.Errorf("ask: %w", errOwnerRequired)
			}
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			st, err := openIndexStack(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer st.Close()
			st.openHistory()

			parts, err := st.newEngine(ctx, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			audience := insight.AudiencePatient
			if clinician != "" {
				audience = insight.AudienceClinician
			}
			ans, err := parts.engine.AnswerFor(ctx, owner, strings.Join(args, " "), audience, clinician)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(ans)
			}
			printAnswer(cmd.OutOrStdout(), ans)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner id whose facts are consulted (required)")
	cmd.Flags().StringVar(&clinician, "clinician", "", "Clinician id; frames the answer for a clinician")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the structured answer as JSON")

	return cmd
}

// printAnswer renders ans as plain text.
func printAnswer(w io.Writer, ans *insight.Answer) {
	fmt.Fprintln(w, ans.Summary)
	if len(ans.Metrics) > 0 {
		fmt.Fprintln(w, "\nMetrics:")
		for _, m := range ans.Metrics {
			fmt.Fprintf(w, "  %s: %s [%s] %s\n", m.Label, m.Value, m.Status, m.Explanation)
		}
	}
	if ans.Analysis != "" {
		fmt.Fprintf(w, "\n%s\n", ans.Analysis)
	}
	if len(ans.Recommendations) > 0 {
		fmt.Fprintln(w, "\nRecommendations:")
		for _, r := range ans.Recommendations {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}
}
