// Package pipeline runs the clean and build tasks that produce the
// concatenated artifact and its optional external copy.
package pipeline

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/seqbuild/internal/config"
	derrors "git.home.luguber.info/inful/seqbuild/internal/errors"
	"git.home.luguber.info/inful/seqbuild/internal/eventstore"
	"git.home.luguber.info/inful/seqbuild/internal/git"
	"git.home.luguber.info/inful/seqbuild/internal/logfields"
	"git.home.luguber.info/inful/seqbuild/internal/metrics"
	"git.home.luguber.info/inful/seqbuild/internal/observability"
)

// RevisionFunc returns a short source revision for the project root, or an
// empty string when none is available.
type RevisionFunc func(root string) string

// Pipeline executes tasks against a validated configuration. A single
// instance serializes its runs.
type Pipeline struct {
	cfg      *config.Config
	recorder metrics.Recorder
	history  eventstore.Store
	revision RevisionFunc
	newID    func() string

	mu sync.Mutex
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithRecorder sets the metrics recorder. Nil keeps the no-op recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithHistory records run events to store.
func WithHistory(store eventstore.Store) Option {
	return func(p *Pipeline) { p.history = store }
}

// WithRevisionFunc overrides how the source revision is resolved.
func WithRevisionFunc(fn RevisionFunc) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.revision = fn
		}
	}
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// New validates cfg and returns a pipeline bound to it.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, derrors.ValidationFailed("config", "configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:      cfg,
		recorder: metrics.NoopRecorder{},
		revision: gitRevision,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() *config.Config { return p.cfg }

// Clean runs the clean task only.
func (p *Pipeline) Clean(ctx context.Context) error {
	_, err := p.Run(ctx, TaskClean)
	return err
}

// Build runs clean followed by build.
func (p *Pipeline) Build(ctx context.Context) (*Result, error) {
	return p.Run(ctx, TaskBuild)
}

// Run resolves task through the task graph and executes its stages in
// dependency order. The returned Result is non-nil whenever the run started,
// including failed runs.
func (p *Pipeline) Run(ctx context.Context, task string) (*Result, error) {
	plan, err := Plan(task)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	r := &run{
		p:     p,
		sm:    newStateMachine(),
		start: time.Now(),
		res: &Result{
			RunID:  p.newID(),
			Task:   task,
			State:  StateIdle,
			Inputs: p.cfg.InputPaths(),
		},
	}
	r.ctx = observability.WithTask(observability.WithRunID(ctx, r.res.RunID), task)
	r.res.Revision = p.revision(p.cfg.Pipeline.Root)

	observability.InfoContext(r.ctx, "Run started",
		logfields.Inputs(len(r.res.Inputs)),
		logfields.Revision(r.res.Revision))
	r.record(eventstore.NewRunStarted(r.res.RunID, task, r.res.Inputs, r.res.Revision))

	for _, t := range plan {
		if err := r.stage(t); err != nil {
			return r.res, err
		}
	}

	if err := r.enter(StateDone); err != nil {
		return r.res, err
	}
	r.res.Duration = time.Since(r.start)
	p.recorder.ObserveBuildDuration(r.res.Duration)
	p.recorder.IncBuildOutcome(string(metrics.ResultSuccess))
	if r.res.Artifact != "" {
		p.recorder.SetArtifactBytes(r.res.Bytes)
	}
	observability.InfoContext(r.ctx, "Run completed",
		logfields.State(string(r.res.State)),
		logfields.DurationMS(float64(r.res.Duration.Milliseconds())),
		logfields.Bytes(r.res.Bytes),
		logfields.Checksum(r.res.SHA256))
	r.record(eventstore.NewRunCompleted(r.res.RunID, r.res.Artifact, r.res.Bytes, r.res.SHA256, r.res.Duration))
	return r.res, nil
}

// run carries the mutable state of one execution.
type run struct {
	p     *Pipeline
	ctx   context.Context
	sm    *stateMachine
	res   *Result
	start time.Time
}

func (r *run) enter(s State) error {
	if err := r.sm.transition(s); err != nil {
		return derrors.InternalError("pipeline state machine", err)
	}
	r.res.State = s
	return nil
}

func (r *run) stage(t Task) error {
	if err := r.enter(t.State); err != nil {
		return err
	}
	ctx := observability.WithStage(r.ctx, t.Name)

	if err := ctx.Err(); err != nil {
		return r.fail(ctx, t.Name, err, metrics.ResultCanceled)
	}

	started := time.Now()
	var err error
	switch t.Name {
	case TaskClean:
		err = r.p.clean(ctx)
	case TaskBuild:
		err = r.p.build(ctx, r.res)
	default:
		err = derrors.InternalError(fmt.Sprintf("no stage implementation for task %q", t.Name), nil)
	}
	elapsed := time.Since(started)
	r.res.Stages = append(r.res.Stages, StageTiming{Name: t.Name, Duration: elapsed})
	r.p.recorder.ObserveStageDuration(t.Name, elapsed)

	if err != nil {
		label := metrics.ResultFailed
		if stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) {
			label = metrics.ResultCanceled
		}
		return r.fail(ctx, t.Name, err, label)
	}
	r.p.recorder.IncStageResult(t.Name, metrics.ResultSuccess)
	observability.DebugContext(ctx, "Stage completed", logfields.DurationMS(float64(elapsed.Milliseconds())))
	r.record(eventstore.NewStageCompleted(r.res.RunID, t.Name, elapsed))

	if t.Name == TaskBuild {
		r.record(eventstore.NewExternalSinkResolved(r.res.RunID, r.res.ExternalSink, r.res.SinkWritten, r.res.SinkReason))
	}
	return nil
}

func (r *run) fail(ctx context.Context, stage string, err error, label metrics.ResultLabel) error {
	if terr := r.enter(StateFailed); terr != nil {
		return stdErrors.Join(err, terr)
	}
	r.res.Duration = time.Since(r.start)
	r.p.recorder.IncStageResult(stage, label)
	r.p.recorder.IncBuildOutcome(string(label))
	r.p.recorder.ObserveBuildDuration(r.res.Duration)

	category := string(derrors.GetCategory(err))
	observability.ErrorContext(ctx, "Run failed", logfields.Error(err), logfields.State(string(StateFailed)))
	r.record(eventstore.NewRunFailed(r.res.RunID, stage, category, err))
	return err
}

// record appends e to the history store. Recording problems are logged and
// never change the outcome of the run.
func (r *run) record(e eventstore.Event, err error) {
	if r.p.history == nil {
		return
	}
	if err == nil {
		err = eventstore.AppendEvent(context.WithoutCancel(r.ctx), r.p.history, e)
	}
	if err != nil {
		herr := derrors.HistoryFailed("append event", err)
		observability.WarnContext(r.ctx, "Run history not recorded", logfields.Error(herr))
	}
}

func gitRevision(root string) string {
	rev, err := git.ReadRevision(root)
	if err != nil {
		if !stdErrors.Is(err, git.ErrNotRepository) {
			slog.Debug("Source revision unavailable", logfields.Path(root), logfields.Error(err))
		}
		return ""
	}
	return rev.Short()
}
