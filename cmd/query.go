package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quarryhq/quarry/internal/app"
	"github.com/quarryhq/quarry/internal/config"
	"github.com/quarryhq/quarry/internal/log"
)

var (
	queryTopK        int
	queryMaxChars    int
	queryDocuments   []string
	queryShowSources bool
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Retrieve relevant chunks and print the assembled context",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().IntVar(&queryTopK, "top-k", 0, "number of chunks to retrieve (default from config)")
	queryCmd.Flags().IntVar(&queryMaxChars, "max-context-chars", 0, "context character budget (default from config)")
	queryCmd.Flags().StringSliceVar(&queryDocuments, "document", nil, "restrict search to these document ids (repeatable)")
	queryCmd.Flags().BoolVar(&queryShowSources, "sources", false, "print the citation list after the context")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	documentIDs := make([]uuid.UUID, 0, len(queryDocuments))
	for _, s := range queryDocuments {
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("invalid document id %q: %w", s, err)
		}
		documentIDs = append(documentIDs, id)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{Level: slog.LevelWarn})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer closeApp(a, logger)

	result, err := a.Service.Query(ctx, args[0], queryTopK, queryMaxChars, documentIDs)
	if err != nil {
		return err
	}

	cmd.Println(result.Context)

	if queryShowSources {
		cmd.Println("sources:")
		for _, c := range result.Citations {
			page := "-"
			if c.PageNumber != nil {
				page = fmt.Sprintf("%d", *c.PageNumber)
			}
			cmd.Printf("  doc %s chunk %d page %s similarity %.3f\n",
				c.DocumentID, c.ChunkID, page, c.Similarity)
		}
	}

	return nil
}
