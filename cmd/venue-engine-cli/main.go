// Package main provides the Venue Engine CLI entrypoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/corner-places/venue-engine/internal/cache"
	"github.com/corner-places/venue-engine/internal/config"
	"github.com/corner-places/venue-engine/internal/observability"
	"github.com/corner-places/venue-engine/internal/retrieval"
	"github.com/corner-places/venue-engine/internal/storage"
)

const version = "0.1.0"

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	verbose    bool
	noColor    bool

	cfg     *config.Config
	logger  *observability.Logger
	metrics *observability.Metrics
	ui      *UI
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "venue-engine-cli",
	Short: "Venue Engine CLI for reconciliation, persistence, embeddings, and search",
	Long: `Venue Engine CLI merges venue records from several sources into one
canonical record per venue, stores them, keeps their embeddings current,
and answers location-aware searches.

Typical flow:
  venue-engine-cli reconcile   # base + source files -> canonical JSON
  venue-engine-cli persist     # canonical JSON -> places/reviews
  venue-engine-cli embed       # places -> embeddings
  venue-engine-cli search "cozy wine bar in SoHo"

All commands support --json for automation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := cfg.Observability.LogLevel
		if verbose {
			level = "debug"
		}
		logFormat := "console"
		if outputJSON {
			logFormat = "json"
		}

		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      logFormat,
			Output:      os.Stderr,
			ServiceName: "venue-engine-cli",
		})
		metrics = observability.NewMetrics("venue_engine_cli")
		ui = NewUI(outputJSON, noColor)

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if ui != nil {
			ui.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newReconcileCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newPersistCmd())
	rootCmd.AddCommand(newEmbedCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputJSON {
				return writeJSON(map[string]string{
					"version": version,
					"go":      runtime.Version(),
				})
			}
			fmt.Printf("venue-engine-cli %s (%s)\n", version, runtime.Version())
			return nil
		},
	}
}

// stores bundles the database and vector store for one command.
type stores struct {
	db      *storage.Database
	repos   *storage.Repositories
	vectors storage.VectorStore
}

// openStores opens and migrates the configured database, and the vector
// store when withVectors is set.
func openStores(ctx context.Context, withVectors bool) (*stores, error) {
	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := storage.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	s := &stores{db: db, repos: storage.NewRepositories(db)}
	if withVectors {
		s.vectors, err = storage.OpenVectorStore(ctx, cfg.Vector, db, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("open vector store: %w", err)
		}
	}
	return s, nil
}

// Close releases the stores.
func (s *stores) Close() {
	if s.vectors != nil {
		if err := s.vectors.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close vector store")
		}
	}
	if err := s.db.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close database")
	}
}

// notifyVenuesUpdated tells running API servers to drop cached searches. Only
// the redis cache is shared across processes, so other drivers are skipped.
func notifyVenuesUpdated(ctx context.Context, stage, runID string, count int) {
	if cfg.Cache.Driver != "redis" || count == 0 {
		return
	}

	client, err := cache.Open(cfg.Cache)
	if err != nil {
		logger.Warn().Err(err).Msg("Cache unavailable, skipping invalidation notice")
		return
	}
	defer client.Close()

	notifier, ok := client.(cache.Notifier)
	if !ok {
		return
	}
	err = retrieval.NotifyVenuesUpdated(ctx, notifier, retrieval.VenuesUpdated{
		RunID: runID,
		Stage: stage,
		Count: count,
	})
	if err != nil {
		logger.Warn().Err(err).Str("stage", stage).Msg("Failed to publish venues updated notice")
		return
	}
	logger.Debug().Str("stage", stage).Int("count", count).Msg("Published venues updated notice")
}

func writeJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
