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
	"github.com/quarryhq/quarry/internal/rag"
)

var indexForce bool

var indexCmd = &cobra.Command{
	Use:   "index [doc_id]",
	Short: "Index document chunks into the vector store",
	Long: `Index embeds the chunks of one document (or of every document when no
id is given) and persists the vectors. Chunks whose content is already
indexed are skipped unless --force is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "re-embed chunks even when already indexed")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{Level: slog.LevelInfo})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer closeApp(a, logger)

	var summary *indexOutcome
	if len(args) == 1 {
		documentID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid document id %q: %w", args[0], err)
		}
		s, err := a.Service.IndexDocument(ctx, documentID, indexForce)
		if err != nil {
			return err
		}
		summary = &indexOutcome{s}
	} else {
		s, err := a.Service.IndexAll(ctx, indexForce)
		if err != nil {
			return err
		}
		summary = &indexOutcome{s}
	}

	summary.print(cmd)
	return nil
}

// indexOutcome wraps a summary for terminal printing.
type indexOutcome struct {
	*rag.IndexSummary
}

func (o *indexOutcome) print(cmd *cobra.Command) {
	cmd.Printf("indexed:  %d\n", o.ChunksIndexed)
	cmd.Printf("skipped:  %d\n", o.ChunksSkipped)
	cmd.Printf("failed:   %d\n", o.ChunksFailed)
	cmd.Printf("batches:  %d\n", o.BatchesProcessed)
	cmd.Printf("elapsed:  %.2fs (embedding %.2fs, persist %.2fs)\n",
		o.ElapsedSeconds, o.EmbeddingSeconds, o.PersistSeconds)
	cmd.Printf("peak mem: %.1f MB\n", o.PeakMemoryMB)
	for _, e := range o.Errors {
		cmd.Printf("error: doc %s chunk %d: %s\n", e.DocumentID, e.ChunkID, e.Reason)
	}
}

func closeApp(a *app.App, logger log.Logger) {
	if err := a.Close(); err != nil {
		logger.Warn("shutdown error", "error", err)
	}
}
