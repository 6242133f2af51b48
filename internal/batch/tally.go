// Package batch runs every configured credential through transfer and
// reconcile and aggregates the saved counts per local destination.
package batch

import (
	"sort"

	"github.com/yarkm13/dropsync/internal/domain"
)

// Tally counts saved files per local destination.
type Tally map[string]int

func (t Tally) Add(dest string, n int) {
	t[dest] += n
}

// Merge adds every count of other into t.
func (t Tally) Merge(other Tally) {
	for dest, n := range other {
		t.Add(dest, n)
	}
}

// Total is the number of saved files across all destinations.
func (t Tally) Total() int {
	total := 0
	for _, n := range t {
		total += n
	}
	return total
}

// Destinations returns the keys of t in sorted order.
func (t Tally) Destinations() []string {
	dests := make([]string, 0, len(t))
	for dest := range t {
		dests = append(dests, dest)
	}
	sort.Strings(dests)
	return dests
}

// Job is one credential and the directories to sync with it, in order.
type Job struct {
	Credential domain.ServerCredential
	Tasks      []domain.RemoteDirectoryTask
}
