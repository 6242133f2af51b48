// Package transfer downloads the matching files of one remote directory into
// a local base path and records a terminal outcome for each of them.
package transfer

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/yarkm13/dropsync/internal/domain"
	"github.com/yarkm13/dropsync/internal/normalize"
	"github.com/yarkm13/dropsync/internal/remote"
	"github.com/yarkm13/dropsync/internal/report"
)

type Options struct {
	Filter Filter
	// VerifySize compares the fetched byte count with the remote size when
	// the session can report one.
	VerifySize bool
	// Verifier, when set, must accept the written file before it is committed.
	Verifier Verifier
	// CreateLocalBase creates a missing local base path instead of aborting the task.
	CreateLocalBase bool
}

type Engine struct {
	normalizer *normalize.Normalizer
	opts       Options
	sink       report.Sink
	log        zerolog.Logger
}

func NewEngine(n *normalize.Normalizer, opts Options, sink report.Sink, log zerolog.Logger) *Engine {
	if sink == nil {
		sink = report.Discard
	}
	return &Engine{normalizer: n, opts: opts, sink: sink, log: log}
}

// WithSink returns a copy of e reporting to sink.
func (e *Engine) WithSink(sink report.Sink) *Engine {
	c := *e
	c.sink = sink
	return &c
}

// Run transfers every matching file of task.RemotePath. It returns an error,
// and no outcomes, only when the directory itself cannot be used.
func (e *Engine) Run(task domain.RemoteDirectoryTask, s remote.Session) ([]domain.TransferOutcome, error) {
	log := e.log.With().Str("remote", task.RemotePath).Str("local_base", task.LocalBasePath).Logger()

	if err := e.prepareLocalBase(task.LocalBasePath); err != nil {
		return nil, err
	}
	if err := s.ChangeDir(task.RemotePath); err != nil {
		return nil, errors.Errorf("entering %s: %w", task.RemotePath, err)
	}
	raws, err := s.List()
	if err != nil {
		return nil, errors.Errorf("listing %s: %w", task.RemotePath, err)
	}
	log.Debug().Int("entries", len(raws)).Msg("listed")

	var (
		outcomes []domain.TransferOutcome
		failed   []string
		seen     = map[string]string{}
	)
	for _, raw := range raws {
		entry := e.normalizer.Entry(raw)
		if entry.Err != nil {
			outcomes = append(outcomes, e.skip(task, raw, entry.Err))
			continue
		}
		if !e.opts.Filter.Match(entry.Name) {
			continue
		}
		if other, dup := seen[entry.Name]; dup {
			err := errors.Errorf("%w: %q and %q decode to the same name", domain.ErrDecode, other, raw)
			outcomes = append(outcomes, e.skip(task, raw, err))
			continue
		}
		seen[entry.Name] = raw

		o := e.transfer(task, entry, s)
		outcomes = append(outcomes, o)
		if o.Status == domain.SaveFailed {
			failed = append(failed, o.Name)
		}
	}

	if len(failed) > 0 {
		ev := report.ForTask(report.KindDirectoryFailures, task)
		ev.Failed = failed
		e.sink.Report(ev)
	}

	log.Info().
		Int("saved", domain.CountStatus(outcomes, domain.Saved)).
		Int("failed", len(failed)).
		Int("skipped", domain.CountStatus(outcomes, domain.Skipped)).
		Msg("directory transferred")
	return outcomes, nil
}

func (e *Engine) prepareLocalBase(base string) error {
	fi, err := os.Stat(base)
	switch {
	case err == nil && fi.IsDir():
		return nil
	case err == nil:
		return domain.NewOpError(domain.ErrLocalIO, "stat", base, errors.New("not a directory"))
	case errors.Is(err, os.ErrNotExist) && e.opts.CreateLocalBase:
		if err := os.MkdirAll(base, 0755); err != nil {
			return localError("mkdir", base, err)
		}
		return nil
	case errors.Is(err, os.ErrNotExist):
		return domain.NewOpError(domain.ErrNotFound, "stat", base, errors.New("local base path does not exist"))
	default:
		return localError("stat", base, err)
	}
}

func (e *Engine) skip(task domain.RemoteDirectoryTask, raw string, err error) domain.TransferOutcome {
	o := domain.TransferOutcome{RawName: raw, Status: domain.Skipped, Err: err}
	ev := report.ForTask(report.KindSkipped, task)
	ev.Name = raw
	ev.Err = err
	e.sink.Report(ev)
	return o
}

func (e *Engine) transfer(task domain.RemoteDirectoryTask, entry domain.CandidateEntry, s remote.Session) domain.TransferOutcome {
	o := domain.TransferOutcome{RawName: entry.Raw, Name: entry.Name}
	localPath := filepath.Join(task.LocalBasePath, filepath.FromSlash(entry.Name))

	remoteSize := int64(-1)
	if sizer, ok := s.(remote.Sizer); ok && e.opts.VerifySize {
		if n, err := sizer.Size(entry.Raw); err == nil {
			remoteSize = n
		} else {
			e.log.Debug().Err(err).Str("file", entry.Name).Msg("size unavailable, not verifying length")
		}
	}

	n, err := saveRemoteFile(localPath,
		func(w io.Writer) (int64, error) {
			return s.Fetch(entry.Raw, w)
		},
		func(tmpPath string, n int64) error {
			if remoteSize >= 0 && n != remoteSize {
				return domain.NewOpError(domain.ErrTransientNetwork, "verify", entry.Name,
					errors.Errorf("received %d bytes, server reports %d", n, remoteSize))
			}
			if e.opts.Verifier != nil {
				return e.opts.Verifier.Verify(tmpPath)
			}
			return nil
		},
	)
	o.Bytes = n

	ev := report.ForTask(report.KindSaved, task)
	ev.Name = entry.Name
	if err != nil {
		o.Status = domain.SaveFailed
		o.Err = err
		ev.Kind = report.KindSaveFailed
		ev.Err = err
	} else {
		o.Status = domain.Saved
		o.LocalPath = localPath
		ev.LocalPath = localPath
		ev.Bytes = n
	}
	e.sink.Report(ev)
	return o
}
