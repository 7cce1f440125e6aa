package frontier

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"

	"github.com/nao1215/frontier/page"
)

// Stats is a point-in-time summary of the frontier.
type Stats struct {
	// Pages is the total number of page records.
	Pages int64

	// ByStatus breaks the total down by crawl state.
	ByStatus map[page.Status]int64

	// PendingEdges is the number of link-graph edges accumulated since
	// the last committed score pass.
	PendingEdges int64

	// Queued is the number of pages currently in the scheduler's
	// priority view (selectable or waiting out a politeness window).
	Queued int
}

// Stats returns a summary of the frontier's current state.
func (f *Frontier) Stats(ctx context.Context) (*Stats, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}
	total, err := f.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	byStatus, err := f.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Pages:        total,
		ByStatus:     byStatus,
		PendingEdges: f.edges.Pending(),
		Queued:       f.sched.Queued(),
	}, nil
}

// reportTopPages is how many top-scored pages the report lists.
const reportTopPages = 10

// WriteReport writes a human-readable Markdown snapshot of the frontier:
// store location, per-status page counts, pending edge volume, and the
// highest-scored pages. Meant for operators inspecting a long-running
// crawl, not for machine consumption.
func (f *Frontier) WriteReport(ctx context.Context, w io.Writer) error {
	if f.closed.Load() {
		return ErrClosed
	}
	stats, err := f.Stats(ctx)
	if err != nil {
		return err
	}

	md := markdown.NewMarkdown(w)
	md.H1("Frontier Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Store", "`" + f.dir + "`"},
			{"Generated", time.Now().Format("2006-01-02 15:04:05 MST")},
			{"Pages", strconv.FormatInt(stats.Pages, 10)},
			{"Queued", strconv.Itoa(stats.Queued)},
			{"Pending edges", strconv.FormatInt(stats.PendingEdges, 10)},
		},
	})
	md.PlainText("")

	md.H2("Pages by Status")
	md.PlainText("")
	statusRows := make([][]string, 0, 4)
	for _, st := range []page.Status{page.StatusNew, page.StatusCrawling, page.StatusCrawled, page.StatusError} {
		statusRows = append(statusRows, []string{
			st.String(), strconv.FormatInt(stats.ByStatus[st], 10),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Status", "Count"},
		Rows:   statusRows,
	})
	md.PlainText("")

	top, err := f.topPages(ctx, reportTopPages)
	if err != nil {
		return err
	}
	md.H2("Top Pages by Score")
	md.PlainText("")
	topRows := make([][]string, 0, len(top))
	for i, rec := range top {
		topRows = append(topRows, []string{
			strconv.Itoa(i + 1),
			fmt.Sprintf("%.4f", rec.Score),
			rec.Status.String(),
			"`" + rec.URL + "`",
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "Score", "Status", "URL"},
		Rows:   topRows,
	})

	return md.Build()
}

// topPages reads the n highest-scored records.
func (f *Frontier) topPages(ctx context.Context, n int) ([]*page.PageRecord, error) {
	it, err := f.store.IterateByScore(ctx)
	if err != nil {
		return nil, err
	}
	defer it.Close() //nolint:errcheck // read-only iterator

	out := make([]*page.PageRecord, 0, n)
	for len(out) < n && it.Next() {
		out = append(out, it.Record())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
