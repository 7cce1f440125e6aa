package schedule

import (
	"time"

	"github.com/nao1215/frontier/page"
)

// entry is one page in the scheduler's view.
type entry struct {
	id        page.Identity
	url       string
	domain    string
	score     float64
	firstSeen time.Time
	status    page.Status
	errCount  int
	crawls    int

	// notBefore delays eligibility: error backoff windows and recrawl
	// intervals both land here. Zero means eligible immediately.
	notBefore time.Time

	// prevStatus remembers the state an entry was selected from so a
	// failed dispatch persist can be rolled back.
	prevStatus page.Status

	// index is the entry's heap position, -1 while not queued.
	index int
}

// entryQueue is a priority queue of entries implementing heap.Interface.
// Highest score first; ties broken by earliest first-seen, then by
// identity so selection order is fully deterministic.
type entryQueue []*entry

func (q entryQueue) Len() int { return len(q) }

func (q entryQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.score != b.score {
		return a.score > b.score
	}
	if !a.firstSeen.Equal(b.firstSeen) {
		return a.firstSeen.Before(b.firstSeen)
	}
	return a.id < b.id
}

func (q entryQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *entryQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *entryQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}
