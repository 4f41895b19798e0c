package cli

import (
	"fmt"

	"github.com/ppiankov/alma/internal/model"
	"github.com/ppiankov/alma/internal/queue"
	"github.com/ppiankov/alma/internal/store"
	"github.com/spf13/cobra"
)

var (
	listStatus string
	listType   string
	listLimit  int
	listOffset int

	addType      string
	addSource    string
	addRelevance float64
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the discovered link queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List links in priority order",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := store.LinkFilter{PredictedType: listType, Limit: listLimit, Offset: listOffset}
		if listStatus != "" {
			status, err := model.ParseLinkStatus(listStatus)
			if err != nil {
				return err
			}
			filter.Status = status
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.queue().List(cmd.Context(), filter)
		if err != nil {
			return err
		}
		renderLinks(cmd.OutOrStdout(), res)
		return nil
	},
}

var queueAddCmd = &cobra.Command{
	Use:   "add <url>...",
	Short: "Enqueue one or more URLs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		links := make([]queue.NewLink, len(args))
		for i, u := range args {
			links[i] = queue.NewLink{URL: u, SourceURL: addSource, Type: addType}
			if cmd.Flags().Changed("relevance") {
				r := addRelevance
				links[i].Relevance = &r
			}
		}
		return enqueue(cmd, links)
	},
}

var queueImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Enqueue URLs from a text, CSV or .xlsx file",
	Long: `Import reads one URL per line from a text or CSV file (first column),
or every cell that looks like a URL from the first sheet of an .xlsx
workbook. Lines starting with # are ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		urls, err := queue.ReadURLsFromFile(args[0])
		if err != nil {
			return err
		}
		links := make([]queue.NewLink, len(urls))
		for i, u := range urls {
			links[i] = queue.NewLink{URL: u, SourceURL: addSource, Type: addType}
		}
		return enqueue(cmd, links)
	},
}

func enqueue(cmd *cobra.Command, links []queue.NewLink) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.queue().Enqueue(cmd.Context(), links)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "inserted %d of %d\n", res.Inserted, res.Requested)
	for _, f := range res.Invalid {
		fmt.Fprintf(out, "✗ %s: %s\n", f.ID, f.Reason)
	}
	return nil
}

func bulkCommand(action model.BulkAction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " <id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.queue().BulkTransition(cmd.Context(), args, action)
			if err != nil {
				return err
			}
			renderBulk(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show status and type distributions with recent success rate",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.queue().Status(cmd.Context(), 20)
		if err != nil {
			return err
		}
		renderStatus(cmd.OutOrStdout(), report)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd, queueAddCmd, queueImportCmd, queueStatusCmd)
	queueCmd.AddCommand(
		bulkCommand(model.ActionApprove, "Approve scraped links"),
		bulkCommand(model.ActionReject, "Reject links"),
		bulkCommand(model.ActionReset, "Reset links to pending and clear errors"),
		bulkCommand(model.ActionPending, "Move links back to pending"),
	)

	queueListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	queueListCmd.Flags().StringVar(&listType, "type", "", "filter by predicted type")
	queueListCmd.Flags().IntVar(&listLimit, "limit", store.DefaultListLimit, "page size")
	queueListCmd.Flags().IntVar(&listOffset, "offset", 0, "page offset")

	for _, c := range []*cobra.Command{queueAddCmd, queueImportCmd} {
		c.Flags().StringVar(&addType, "type", "", "predicted type hint")
		c.Flags().StringVar(&addSource, "source", "", "page the links were discovered on")
	}
	queueAddCmd.Flags().Float64Var(&addRelevance, "relevance", queue.DefaultRelevance, "predicted relevance 0..1")
}
