package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/healthlens/healthlens-go/internal/ingestion"
	"github.com/healthlens/healthlens-go/internal/logging"
	"github.com/healthlens/healthlens-go/internal/server"
	"github.com/healthlens/healthlens-go/internal/tracing"
)

// NewServeCmd constructs the `healthlens serve` command, which starts the
// HTTP API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HealthLens HTTP API",
		Long: `Start the HealthLens HTTP API.

The server answers insight questions, accepts fact writes and retractions,
and rebuilds an owner's index on request. Owner identity is read from the
X-Owner-ID header set by the authenticating gateway in front of it.

Examples:
  healthlens serve
  healthlens serve --port 9090
  QDRANT_HOST=localhost MODEL_PROVIDER=openai healthlens serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)
			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			flush, traced := tracing.Register()
			defer flush()
			if traced {
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			st, err := openIndexStack(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer st.Close()
			if err := st.openRecords(); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			st.openHistory()

			reg := prometheus.DefaultRegisterer
			parts, err := st.newEngine(ctx, reg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			indexer, err := st.newIndexer(reg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			rebuilder, err := ingestion.NewRebuilder(indexer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			deps := server.Deps{
				Answerer:  parts.engine,
				Facts:     indexer.Pipeline(),
				Rebuilder: rebuilder,
				CareTeam:  st.records,
			}
			if st.history != nil {
				deps.History = st.history
			}

			srv, err := server.New(deps, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: st.pingers(parts),
				APIKey:  os.Getenv("HEALTHLENS_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
