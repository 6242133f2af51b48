// Package reconcile removes remote files whose local copy was saved, after
// confirming on a fresh listing that they are still there.
package reconcile

import (
	"slices"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/yarkm13/dropsync/internal/domain"
	"github.com/yarkm13/dropsync/internal/normalize"
	"github.com/yarkm13/dropsync/internal/remote"
	"github.com/yarkm13/dropsync/internal/report"
)

type Reconciler struct {
	normalizer *normalize.Normalizer
	sink       report.Sink
	log        zerolog.Logger
}

// New returns a Reconciler. n must be the Normalizer the transfer used.
func New(n *normalize.Normalizer, sink report.Sink, log zerolog.Logger) *Reconciler {
	if sink == nil {
		sink = report.Discard
	}
	return &Reconciler{normalizer: n, sink: sink, log: log}
}

// WithSink returns a copy of r reporting to sink.
func (r *Reconciler) WithSink(sink report.Sink) *Reconciler {
	c := *r
	c.sink = sink
	return &c
}

// Run deletes, at most once each, the remote files saved in outcomes. Only
// Saved outcomes are considered, and each is removed by the exact raw name it
// was fetched by. An error means the directory could not be entered or
// re-listed, and nothing was deleted.
func (r *Reconciler) Run(task domain.RemoteDirectoryTask, outcomes []domain.TransferOutcome, s remote.Session) ([]domain.ReconcileOutcome, error) {
	saved := domain.SavedOutcomes(outcomes)
	if len(saved) == 0 {
		return nil, nil
	}

	if err := s.ChangeDir(task.RemotePath); err != nil {
		return nil, errors.Errorf("entering %s: %w", task.RemotePath, err)
	}
	raws, err := s.List()
	if err != nil {
		return nil, errors.Errorf("listing %s: %w", task.RemotePath, err)
	}

	// Canonical name to every raw name decoding to it. Names that fail to
	// decode now cannot be matched and are left alone.
	present := make(map[string][]string, len(raws))
	for _, raw := range raws {
		if name, err := r.normalizer.Normalize(raw); err == nil {
			present[name] = append(present[name], raw)
		}
	}

	log := r.log.With().Str("remote", task.RemotePath).Logger()
	results := make([]domain.ReconcileOutcome, 0, len(saved))
	done := map[string]bool{}
	for _, o := range saved {
		if done[o.RawName] {
			continue
		}
		done[o.RawName] = true

		res := domain.ReconcileOutcome{Name: o.Name}
		// A twin spelling of the same name was never fetched and must stay.
		if !slices.Contains(present[o.Name], o.RawName) {
			res.Status = domain.NotFoundRemotely
		} else if err := s.Remove(o.RawName); errors.Is(err, domain.ErrNotFound) {
			res.Status = domain.NotFoundRemotely
		} else if err != nil {
			res.Status = domain.DeleteFailed
			res.Err = err
		} else {
			res.Status = domain.Deleted
		}
		results = append(results, res)
		r.report(task, res)
	}

	log.Info().
		Int("deleted", countStatus(results, domain.Deleted)).
		Int("not_found", countStatus(results, domain.NotFoundRemotely)).
		Int("failed", countStatus(results, domain.DeleteFailed)).
		Msg("directory reconciled")
	return results, nil
}

func (r *Reconciler) report(task domain.RemoteDirectoryTask, res domain.ReconcileOutcome) {
	kind := report.KindDeleted
	switch res.Status {
	case domain.NotFoundRemotely:
		kind = report.KindNotFoundRemotely
	case domain.DeleteFailed:
		kind = report.KindDeleteFailed
	}
	ev := report.ForTask(kind, task)
	ev.Name = res.Name
	ev.Err = res.Err
	r.sink.Report(ev)
}

func countStatus(results []domain.ReconcileOutcome, status domain.ReconcileStatus) int {
	n := 0
	for _, r := range results {
		if r.Status == status {
			n++
		}
	}
	return n
}
