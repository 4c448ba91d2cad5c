package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arkivo/arkivo/internal/app"
	"github.com/arkivo/arkivo/internal/document"
)

var (
	ingestOrg   string
	ingestTitle string
	ingestTags  []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Index a text file into the corpus",
	Long: `Ingest reads a file, creates a document in the given organization,
and runs the full processing pipeline: chunking, embedding, and vector
storage. The document id is printed on success.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(args[0])
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestOrg, "org", "", "organization id (required)")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title (defaults to the file name)")
	ingestCmd.Flags().StringSliceVar(&ingestTags, "tag", nil, "tag to attach (repeatable)")
	_ = ingestCmd.MarkFlagRequired("org")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(path string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	orgID, err := document.ParseOrganizationID(ingestOrg)
	if err != nil {
		return fmt.Errorf("--org must be a uuid: %w", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	title := ingestTitle
	if title == "" {
		title = filepath.Base(path)
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

	fileInfo := document.FileInfo{
		Name:        filepath.Base(path),
		ContentType: contentTypeFor(path),
		Size:        int64(len(content)),
	}
	doc, err := a.Processor.Create(ctx, orgID, title, string(content), fileInfo, nil, ingestTags)
	if err != nil {
		return fmt.Errorf("creating document: %w", err)
	}

	doc, err = a.Processor.Process(ctx, doc.ID())
	if err != nil {
		return fmt.Errorf("processing document: %w", err)
	}

	embedded := 0
	for _, c := range doc.Chunks() {
		if c.EmbeddingState() == document.EmbeddingReady {
			embedded++
		}
	}
	fmt.Printf("Indexed %s\n", path)
	fmt.Printf("  Document: %s\n", doc.ID())
	fmt.Printf("  Status:   %s\n", doc.Status())
	fmt.Printf("  Chunks:   %d (%d embedded)\n", len(doc.Chunks()), embedded)
	return nil
}

// contentTypeFor guesses a coarse content type from the extension.
func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".html", ".htm":
		return "text/html"
	case ".json":
		return "application/json"
	default:
		return "text/plain"
	}
}
