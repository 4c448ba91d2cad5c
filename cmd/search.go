package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arkivo/arkivo/internal/app"
	"github.com/arkivo/arkivo/internal/document"
	"github.com/arkivo/arkivo/internal/search"
)

var (
	searchOrg       string
	searchTop       int
	searchMinScore  float32
	searchTags      []string
	searchNoContent bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a semantic search over the corpus",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(strings.Join(args, " "))
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchOrg, "org", "", "organization id (required)")
	searchCmd.Flags().IntVar(&searchTop, "top", 10, "maximum number of results")
	searchCmd.Flags().Float32Var(&searchMinScore, "min-score", 0, "minimum similarity score in [0,1]")
	searchCmd.Flags().StringSliceVar(&searchTags, "tag", nil, "require tag (repeatable)")
	searchCmd.Flags().BoolVar(&searchNoContent, "no-content", false, "omit chunk text from results")
	_ = searchCmd.MarkFlagRequired("org")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(text string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	orgID, err := document.ParseOrganizationID(searchOrg)
	if err != nil {
		return fmt.Errorf("--org must be a uuid: %w", err)
	}

	query, err := search.NewQuery(orgID, text, searchTop, searchMinScore,
		searchTags, !searchNoContent)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	results, err := a.Searcher.Search(ctx, query)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. %s (score %.3f)\n", i+1, r.DocumentTitle, r.RelevanceScore)
		fmt.Printf("   document %s, chunk %d\n", r.DocumentID, r.ChunkIndex)
		if !searchNoContent {
			fmt.Printf("   %s\n", firstLine(r.Content))
		}
	}
	return nil
}

// firstLine truncates multi-line chunk text for terminal display.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const max = 160
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
