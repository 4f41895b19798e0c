package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ppiankov/alma/internal/logger"
	"github.com/ppiankov/alma/internal/model"
	"github.com/ppiankov/alma/internal/queue"
	"github.com/spf13/cobra"
)

var (
	processBatchSize int
	processLinkID    string
	processImport    string
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Fetch, classify and store the next batch of pending links",
	Long: `Process claims the highest-priority pending links, fetches each page,
applies the quality gate, classifies accepted pages and writes them to the
knowledge base. Use --link to process a single pending link.

With the in-memory store, --import seeds the queue from a file first.`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().IntVarP(&processBatchSize, "batch-size", "n", 0, "links per batch (default pipeline.batch_size)")
	processCmd.Flags().StringVar(&processLinkID, "link", "", "process one pending link by id")
	processCmd.Flags().StringVar(&processImport, "import", "", "enqueue URLs from a file before processing")
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if processImport != "" {
		urls, err := queue.ReadURLsFromFile(processImport)
		if err != nil {
			return err
		}
		res, err := a.queue().EnqueueURLs(ctx, urls)
		if err != nil {
			return err
		}
		a.log.Info("Seeded queue", logger.String("file", processImport), logger.Int("inserted", res.Inserted))
	}

	var summary *model.BatchSummary
	if processLinkID != "" {
		summary, err = a.processor.ProcessOne(ctx, processLinkID)
	} else {
		size := processBatchSize
		if size <= 0 {
			size = a.cfg.Pipeline.BatchSize
		}
		summary, err = a.processor.RunBatch(ctx, size)
	}
	if err != nil {
		return err
	}

	if summary.Processed == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no pending links")
		return nil
	}
	renderSummary(cmd.OutOrStdout(), summary)
	return nil
}
