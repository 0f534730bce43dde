package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corner-places/venue-engine/internal/cache"
	"github.com/corner-places/venue-engine/internal/embedding"
	"github.com/corner-places/venue-engine/internal/retrieval"
)

func newSearchCmd() *cobra.Command {
	var q retrieval.Query

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search venues with neighborhood-aware ranking",
		Example: `  venue-engine-cli search "cozy coffee shop in Brooklyn"
  venue-engine-cli search "natural wine" --neighborhood soho --limit 10`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			q.Text = strings.Join(args, " ")

			st, err := openStores(ctx, true)
			if err != nil {
				return err
			}
			defer st.Close()

			embedder, err := embedding.New(cfg.Embedding, logger)
			if err != nil {
				return err
			}

			// A process-local cache would die with the command; only redis is worth using here.
			var client cache.Client
			if cfg.Cache.Driver == "redis" && cfg.Retrieval.CacheResults {
				client, err = cache.Open(cfg.Cache)
				if err != nil {
					logger.Warn().Err(err).Msg("Cache unavailable, searching without it")
					client = nil
				} else {
					defer client.Close()
				}
			}

			searcher := retrieval.NewSearcher(logger, metrics, embedder, st.vectors, st.repos.Places,
				client, retrieval.ExtractorFrom(cfg, logger), retrieval.SearcherConfigFrom(cfg))

			resp, err := searcher.Search(ctx, q)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if outputJSON {
				return writeJSON(resp)
			}
			printSearch(resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&q.Neighborhood, "neighborhood", "n", "", "restrict to a neighborhood instead of extracting one")
	cmd.Flags().IntVarP(&q.Limit, "limit", "l", 0, "maximum results (default: retrieval.default_limit)")
	cmd.Flags().Float64Var(&q.Boost, "boost", 0, "similarity multiplier for the target neighborhood")
	return cmd
}

func printSearch(resp *retrieval.Response) {
	ui.Section("Search")
	ui.KeyValue("Query", resp.Query)
	if resp.SearchText != resp.Query {
		ui.KeyValue("Searched", resp.SearchText)
	}
	if resp.Neighborhood != "" {
		ui.KeyValue("Neighborhood", fmt.Sprintf("%s (%s)", resp.Neighborhood, resp.Method))
	}
	ui.KeyValue("Fallback", resp.Fallback)
	if resp.Cached {
		ui.KeyValue("Cached", true)
	}
	fmt.Println()

	if len(resp.Results) == 0 {
		ui.Warning("No venues found")
		return
	}

	rows := make([][]string, 0, len(resp.Results))
	for i, r := range resp.Results {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			Truncate(r.Name, 32),
			Truncate(r.Neighborhood, 20),
			r.Price,
			fmt.Sprintf("%.3f", r.Similarity),
			Truncate(strings.Join(r.Tags, ", "), 30),
		})
	}
	ui.Table([]string{"#", "Name", "Neighborhood", "Price", "Score", "Tags"}, rows)
	ui.Info("%d results in %dms", len(resp.Results), resp.LatencyMs)
}
