package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/corner-places/venue-engine/internal/embedding"
	"github.com/corner-places/venue-engine/internal/ingest"
	"github.com/corner-places/venue-engine/internal/reconcile"
	"github.com/corner-places/venue-engine/internal/sources"
	"github.com/corner-places/venue-engine/internal/storage"
)

// reconcileOptions overrides the configured input paths.
type reconcileOptions struct {
	base      string
	google    string
	openTable string
	osm       string
	website   string
	resy      string
	output    string
}

func (o *reconcileOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.base, "base", "", "base venue CSV (overrides inputs.base)")
	cmd.Flags().StringVar(&o.google, "google", "", "Google Places CSV")
	cmd.Flags().StringVar(&o.openTable, "opentable", "", "OpenTable CSV")
	cmd.Flags().StringVar(&o.osm, "osm", "", "OpenStreetMap enrichment CSV")
	cmd.Flags().StringVar(&o.website, "website", "", "website scrape JSON")
	cmd.Flags().StringVar(&o.resy, "resy", "", "Resy JSON")
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "canonical venue JSON output (overrides inputs.output)")
}

func (o *reconcileOptions) apply() {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Inputs.Base, o.base)
	set(&cfg.Inputs.Google, o.google)
	set(&cfg.Inputs.OpenTable, o.openTable)
	set(&cfg.Inputs.OSM, o.osm)
	set(&cfg.Inputs.Website, o.website)
	set(&cfg.Inputs.Resy, o.resy)
	set(&cfg.Inputs.Output, o.output)
}

func newReconcileCmd() *cobra.Command {
	var opts reconcileOptions

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Merge source files into canonical venue records",
		Long: `Reconcile reads the base venue list and every configured source file,
merges them into one canonical record per venue, and writes the records as
a JSON array. Missing optional sources are skipped with a warning.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.apply()
			if cfg.Inputs.Base == "" {
				return fmt.Errorf("no base input: set inputs.base or pass --base")
			}
			_, result, err := runReconcile(cmd)
			if err != nil {
				return err
			}
			if outputJSON {
				return writeJSON(result)
			}
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}

// runReconcile loads sources, reconciles every base row and writes the output file.
func runReconcile(cmd *cobra.Command) ([]*reconcile.Venue, *reconcile.BatchResult, error) {
	ctx := cmd.Context()

	ui.Step("Loading sources")
	set, err := sources.NewLoader(logger).Load(cfg.Inputs)
	if err != nil {
		return nil, nil, fmt.Errorf("load sources: %w", err)
	}

	batch := reconcile.NewBatch(reconcile.New(logger), logger, metrics)
	venues, result, err := batch.Run(ctx, set, ui.Tracker("reconcile"))
	if err != nil {
		return nil, result, fmt.Errorf("reconcile: %w", err)
	}

	if cfg.Inputs.Output != "" {
		if err := reconcile.WriteFile(cfg.Inputs.Output, venues); err != nil {
			return venues, result, fmt.Errorf("write output: %w", err)
		}
	}

	ui.Success("Reconciled %d venues (%d failed) in %s", result.Succeeded, result.Failed, FormatDuration(result.Duration))
	if cfg.Inputs.Output != "" {
		ui.KeyValue("Output", cfg.Inputs.Output)
	}
	printErrors(result.Errors)
	return venues, result, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			spin := ui.NewSpinner(fmt.Sprintf("Migrating %s database...", cfg.Database.Driver))

			db, err := storage.Open(ctx, cfg.Database)
			if err != nil {
				spin.Stop()
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			err = storage.Migrate(ctx, db)
			spin.Stop()
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			if outputJSON {
				return writeJSON(map[string]string{
					"status":    "migrated",
					"driver":    cfg.Database.Driver,
					"migration": storage.MigrationFile(db.Dialect),
				})
			}
			ui.Success("Schema up to date (%s)", storage.MigrationFile(db.Dialect))
			return nil
		},
	}
}

func newPersistCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "persist",
		Short: "Write canonical venue records to the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				input = cfg.Inputs.Output
			}
			if input == "" {
				return fmt.Errorf("no input: set inputs.output or pass --input")
			}
			venues, err := reconcile.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read venues: %w", err)
			}
			ui.Info("Loaded %d venues from %s", len(venues), input)

			result, err := runPersist(cmd, venues)
			if err != nil {
				return err
			}
			if outputJSON {
				return writeJSON(result)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "canonical venue JSON (default: inputs.output)")
	return cmd
}

// runPersist upserts venues and their reviews.
func runPersist(cmd *cobra.Command, venues []*reconcile.Venue) (*ingest.Result, error) {
	ctx := cmd.Context()

	st, err := openStores(ctx, false)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	pipeline := ingest.NewPipeline(logger, st.repos.Places, metrics)
	result, err := pipeline.Persist(ctx, venues, ui.Tracker("persist"))
	if err != nil {
		return result, fmt.Errorf("persist: %w", err)
	}

	notifyVenuesUpdated(ctx, "persist", result.JobID.String(), result.Succeeded())

	ui.Success("Persisted %d venues (%d created, %d updated, %d failed) in %s",
		result.Succeeded(), result.Created, result.Updated, result.Failed, FormatDuration(result.Duration))
	printErrors(result.Errors)
	return result, nil
}

type embedOptions struct {
	skipUnchanged bool
	delay         time.Duration
}

func (o *embedOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.skipUnchanged, "skip-unchanged", false, "skip stale venues whose content hash did not change")
	cmd.Flags().DurationVar(&o.delay, "delay", -1, "pause between embedding calls (default: embedding.call_delay)")
}

func newEmbedCmd() *cobra.Command {
	var opts embedOptions

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Generate embeddings for new and stale venues",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := runEmbed(cmd, opts)
			if err != nil {
				return err
			}
			if outputJSON {
				return writeJSON(report)
			}
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}

// runEmbed embeds every place without a current vector.
func runEmbed(cmd *cobra.Command, opts embedOptions) (*embedding.Report, error) {
	ctx := cmd.Context()

	st, err := openStores(ctx, true)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}

	genCfg := embedding.GeneratorConfigFrom(cfg.Embedding)
	if opts.skipUnchanged {
		genCfg.SkipUnchanged = true
	}
	if opts.delay >= 0 {
		genCfg.CallDelay = opts.delay
	}

	total, err := st.repos.Places.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count places: %w", err)
	}
	bar := ui.NewProgressBar(int64(total), "Embedding")

	gen := embedding.NewGenerator(logger, metrics, st.repos.Places, st.repos.Reviews, st.vectors, embedder, genCfg)
	report, err := gen.Run(ctx, bar.Update)
	bar.Finish()
	if err != nil {
		return report, fmt.Errorf("embed: %w", err)
	}

	notifyVenuesUpdated(ctx, "embed", report.RunID.String(), report.Succeeded+report.Updated)

	ui.Success("Embedded %d new and %d stale venues (%d up to date, %d failed) in %s",
		report.Succeeded, report.Updated, report.UpToDate, report.Failed, FormatDuration(report.Duration))
	ui.KeyValue("Model", embedder.Model())
	ui.KeyValue("Tokens", report.Tokens)
	ui.KeyValue("Estimated cost", fmt.Sprintf("$%.4f", report.EstimatedCost))
	printErrors(report.Errors)
	return report, nil
}

func newRunCmd() *cobra.Command {
	var (
		recOpts   reconcileOptions
		embOpts   embedOptions
		skipEmbed bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile, persist, and embed in one pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			recOpts.apply()
			if cfg.Inputs.Base == "" {
				return fmt.Errorf("no base input: set inputs.base or pass --base")
			}

			summary := map[string]interface{}{}

			ui.Section("Reconcile")
			venues, recResult, err := runReconcile(cmd)
			if err != nil {
				return err
			}
			summary["reconcile"] = recResult

			ui.Section("Persist")
			persistResult, err := runPersist(cmd, venues)
			if err != nil {
				return err
			}
			summary["persist"] = persistResult

			if !skipEmbed {
				ui.Section("Embed")
				report, err := runEmbed(cmd, embOpts)
				if err != nil {
					return err
				}
				summary["embed"] = report
			}

			if outputJSON {
				return writeJSON(summary)
			}
			return nil
		},
	}
	recOpts.bind(cmd)
	embOpts.bind(cmd)
	cmd.Flags().BoolVar(&skipEmbed, "skip-embed", false, "stop after persisting")
	return cmd
}

// printErrors lists the first few per-venue errors of a run.
func printErrors(errs []string) {
	const shown = 10
	for i, e := range errs {
		if i == shown {
			ui.Warning("... and %d more", len(errs)-shown)
			return
		}
		ui.Warning("%s", e)
	}
}
