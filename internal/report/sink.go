// Package report carries per-file and per-directory sync outcomes to whatever
// renders them: logs, metrics, the catalog.
package report

import (
	"sync"
	"sync/atomic"

	"github.com/yarkm13/dropsync/internal/domain"
)

type Kind string

const (
	KindSaved             Kind = "saved"
	KindSaveFailed        Kind = "save_failed"
	KindSkipped           Kind = "skipped"
	KindDeleted           Kind = "deleted"
	KindNotFoundRemotely  Kind = "not_found_remotely"
	KindDeleteFailed      Kind = "delete_failed"
	KindDirectoryFailures Kind = "directory_failures"
	KindTaskAborted       Kind = "task_aborted"
	KindConnectFailed     Kind = "connect_failed"
	KindCancelled         Kind = "cancelled"
)

// Failed reports whether an event of this kind needs operator attention.
// Skipped names and files already gone remotely do not.
func (k Kind) Failed() bool {
	switch k {
	case KindSaveFailed, KindDeleteFailed, KindTaskAborted, KindConnectFailed:
		return true
	}
	return false
}

// Event is one terminal outcome.
type Event struct {
	Kind       Kind
	Credential string
	RemotePath string
	LocalBase  string
	Name       string   // canonical name, or the raw name for Skipped
	LocalPath  string   // Saved only
	Bytes      int64    // Saved only
	Failed     []string // DirectoryFailures only
	Err        error
}

// Sink receives every terminal outcome exactly once.
type Sink interface {
	Report(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Report(e Event) { f(e) }

// Discard drops everything.
var Discard Sink = SinkFunc(func(Event) {})

type multi []Sink

// Multi fans events out to every sink in order.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multi) Report(e Event) {
	for _, s := range m {
		s.Report(e)
	}
}

// Scoped stamps the credential label on every event.
func Scoped(s Sink, cred domain.ServerCredential) Sink {
	label := cred.String()
	return SinkFunc(func(e Event) {
		e.Credential = label
		s.Report(e)
	})
}

// ForTask returns the event for task with the directory fields filled in.
func ForTask(kind Kind, task domain.RemoteDirectoryTask) Event {
	return Event{Kind: kind, RemotePath: task.RemotePath, LocalBase: task.LocalBasePath}
}

// Recorder keeps events in memory. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Report(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Names returns the names of the events of one kind, in order.
func (r *Recorder) Names(kind Kind) []string {
	var names []string
	for _, e := range r.Events() {
		if e.Kind == kind {
			names = append(names, e.Name)
		}
	}
	return names
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	n := 0
	for _, e := range r.Events() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// FailureCounter counts events whose kind Failed.
type FailureCounter struct {
	n atomic.Int64
}

func (c *FailureCounter) Report(e Event) {
	if e.Kind.Failed() {
		c.n.Add(1)
	}
}

func (c *FailureCounter) Failures() int64 { return c.n.Load() }
