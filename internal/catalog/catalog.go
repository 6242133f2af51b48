// Package catalog records what a run saved and writes it out once the run is
// over: to the console, to a YAML or JSON file, or to PostgreSQL.
package catalog

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/yarkm13/dropsync/internal/report"
)

// Entry is one saved file.
type Entry struct {
	Destination string `json:"destination" yaml:"destination"`
	Name        string `json:"name" yaml:"name"`
	Identifier  string `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	LocalPath   string `json:"local_path" yaml:"local_path"`
	Bytes       int64  `json:"bytes" yaml:"bytes"`
	Credential  string `json:"credential" yaml:"credential"`
	Remote      string `json:"remote" yaml:"remote"`
}

type Catalog struct {
	RunID     string         `json:"run_id" yaml:"run_id"`
	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
	Tally     map[string]int `json:"tally" yaml:"tally"`
	Entries   []Entry        `json:"entries" yaml:"entries"`
}

// Total is the number of saved files in the run.
func (c Catalog) Total() int {
	n := 0
	for _, v := range c.Tally {
		n += v
	}
	return n
}

// Destinations returns the tally keys in sorted order.
func (c Catalog) Destinations() []string {
	dests := make([]string, 0, len(c.Tally))
	for d := range c.Tally {
		dests = append(dests, d)
	}
	sort.Strings(dests)
	return dests
}

// Writer persists a finished catalog.
type Writer interface {
	Write(ctx context.Context, c Catalog) error
}

// Identifier keeps only the digits of the file's base name, e.g. the
// consumer unit number in "UC 0123-45.pdf" becomes "012345".
func Identifier(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, path.Base(name))
}

// Collector is a report.Sink that remembers every saved file.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
}

func (c *Collector) Report(e report.Event) {
	if e.Kind != report.KindSaved {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, Entry{
		Destination: e.LocalBase,
		Name:        e.Name,
		Identifier:  Identifier(e.Name),
		LocalPath:   e.LocalPath,
		Bytes:       e.Bytes,
		Credential:  e.Credential,
		Remote:      e.RemotePath,
	})
}

// Build returns the catalog of a finished run. tally must be final.
func (c *Collector) Build(tally map[string]int, now time.Time) Catalog {
	c.mu.Lock()
	entries := append([]Entry(nil), c.entries...)
	c.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Destination != entries[j].Destination {
			return entries[i].Destination < entries[j].Destination
		}
		return entries[i].Name < entries[j].Name
	})
	t := make(map[string]int, len(tally))
	for k, v := range tally {
		t[k] = v
	}
	return Catalog{
		RunID:     uuid.NewString(),
		CreatedAt: now.UTC(),
		Tally:     t,
		Entries:   entries,
	}
}

// WriteAll runs every writer and returns the first error.
func WriteAll(ctx context.Context, c Catalog, writers ...Writer) error {
	var first error
	for _, w := range writers {
		if w == nil {
			continue
		}
		if err := w.Write(ctx, c); err != nil && first == nil {
			first = err
		}
	}
	return first
}
