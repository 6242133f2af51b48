package batch

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/yarkm13/dropsync/internal/domain"
	"github.com/yarkm13/dropsync/internal/reconcile"
	"github.com/yarkm13/dropsync/internal/remote"
	"github.com/yarkm13/dropsync/internal/report"
	"github.com/yarkm13/dropsync/internal/transfer"
)

type Config struct {
	// Workers is the number of credentials processed at the same time.
	Workers int
	// ConnectAttempts bounds connect retries on transient failures.
	ConnectAttempts int
	Session         remote.Options
}

type Orchestrator struct {
	connector  remote.Connector
	engine     *transfer.Engine
	reconciler *reconcile.Reconciler
	sink       report.Sink
	cfg        Config
	log        zerolog.Logger
}

func New(c remote.Connector, e *transfer.Engine, r *reconcile.Reconciler, sink report.Sink, cfg Config, log zerolog.Logger) *Orchestrator {
	if sink == nil {
		sink = report.Discard
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.ConnectAttempts < 1 {
		cfg.ConnectAttempts = 1
	}
	return &Orchestrator{connector: c, engine: e, reconciler: r, sink: sink, cfg: cfg, log: log}
}

// Run processes every job and returns the merged tally. Cancelling ctx stops
// jobs that have not started yet; a running job always finishes. The tally is
// complete when Run returns.
func (o *Orchestrator) Run(ctx context.Context, jobs []Job) Tally {
	tallies := make([]Tally, len(jobs))

	var g errgroup.Group
	g.SetLimit(o.cfg.Workers)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			sink := report.Scoped(o.sink, job.Credential)
			if err := ctx.Err(); err != nil {
				sink.Report(report.Event{Kind: report.KindCancelled, Err: err})
				return nil
			}
			tallies[i] = o.runJob(job, sink)
			return nil
		})
	}
	_ = g.Wait()

	total := Tally{}
	for _, t := range tallies {
		total.Merge(t)
	}
	return total
}

func (o *Orchestrator) runJob(job Job, sink report.Sink) Tally {
	tally := Tally{}
	log := o.log.With().Str("credential", job.Credential.String()).Logger()

	s, err := remote.ConnectWithRetry(o.connector, job.Credential, o.cfg.Session, o.cfg.ConnectAttempts)
	if err != nil {
		sink.Report(report.Event{Kind: report.KindConnectFailed, Err: err})
		return tally
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Msg("closing session")
		}
	}()

	engine := o.engine.WithSink(sink)
	reconciler := o.reconciler.WithSink(sink)
	for _, task := range job.Tasks {
		outcomes, err := engine.Run(task, s)
		if err != nil {
			o.abort(sink, task, err)
			continue
		}
		saved := domain.CountStatus(outcomes, domain.Saved)
		tally.Add(task.LocalBasePath, saved)
		if saved == 0 {
			continue
		}
		if _, err := reconciler.Run(task, outcomes, s); err != nil {
			o.abort(sink, task, err)
		}
	}
	return tally
}

func (o *Orchestrator) abort(sink report.Sink, task domain.RemoteDirectoryTask, err error) {
	ev := report.ForTask(report.KindTaskAborted, task)
	ev.Err = err
	sink.Report(ev)
}
