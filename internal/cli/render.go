package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/ppiankov/alma/internal/merge"
	"github.com/ppiankov/alma/internal/model"
	"github.com/ppiankov/alma/internal/queue"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func renderLinks(w io.Writer, res *queue.ListResult) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Status", "Type", "Relevance", "URL", "Error"})
	for _, l := range res.Links {
		t.AppendRow(table.Row{l.ID, l.Status, l.PredictedType, fmt.Sprintf("%.2f", l.PredictedRelevance), l.URL, shorten(l.ErrorMessage, 60)})
	}
	t.Render()
	fmt.Fprintf(w, "showing %d of %d\n", len(res.Links), res.Total)
	renderCounts(w, res.StatusCounts)
}

func renderCounts(w io.Writer, counts map[model.LinkStatus]int) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Status", "Links"})
	for _, s := range model.AllLinkStatuses {
		t.AppendRow(table.Row{s, counts[s]})
	}
	t.Render()
}

func renderStatus(w io.Writer, report *queue.StatusReport) {
	renderCounts(w, report.StatusCounts)

	types := make([]string, 0, len(report.TypeCounts))
	for k := range report.TypeCounts {
		types = append(types, k)
	}
	sort.Strings(types)
	t := newTable(w)
	t.AppendHeader(table.Row{"Predicted type", "Links"})
	for _, k := range types {
		t.AppendRow(table.Row{k, report.TypeCounts[k]})
	}
	t.Render()

	fmt.Fprintf(w, "Total: %d  Recent success rate: %.0f%%\n", report.Total, report.SuccessRate*100)
}

func renderSummary(w io.Writer, s *model.BatchSummary) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Link", "Outcome", "Intervention", "Reason", "Duration"})
	for _, r := range s.Results {
		t.AppendRow(table.Row{r.LinkID, r.Outcome, r.InterventionID, shorten(r.Reason, 60), r.Duration.Round(time.Millisecond)})
	}
	t.Render()
	fmt.Fprintf(w, "processed %d: scraped %d, conflicts %d, rejected %d, errors %d\n",
		s.Processed, s.Scraped, s.Conflicts, s.Rejected, s.Errors)
}

func renderMerge(w io.Writer, r *merge.Report) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Name", "Keeper", "Deleted", "Changed fields"})
	for _, d := range r.Decisions {
		t.AppendRow(table.Row{d.KeeperName, d.KeeperID, strings.Join(d.DeletedIDs, ", "), strings.Join(d.ChangedFields, ", ")})
	}
	t.Render()

	mode := "dry run"
	if r.Live {
		mode = "live"
	}
	fmt.Fprintf(w, "%s: %d groups, %d records deleted, %d remaining\n", mode, r.GroupsProcessed, r.RecordsDeleted, r.FinalCount)
	for _, f := range r.Failures {
		fmt.Fprintf(w, "✗ %s (%s): %s\n", f.ID, f.Kind, f.Reason)
	}
}

func renderBulk(w io.Writer, res *model.BulkResult) {
	fmt.Fprintln(w, res.Summary())
	for _, f := range res.Failures {
		fmt.Fprintf(w, "✗ %s: %s\n", f.ID, f.Reason)
	}
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
