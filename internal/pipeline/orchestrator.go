package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/appforge/internal/events"
	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
	"git.home.luguber.info/inful/appforge/internal/generate"
	"git.home.luguber.info/inful/appforge/internal/history"
	"git.home.luguber.info/inful/appforge/internal/logfields"
	"git.home.luguber.info/inful/appforge/internal/metrics"
	"git.home.luguber.info/inful/appforge/internal/notify"
	"git.home.luguber.info/inful/appforge/internal/observability"
	"git.home.luguber.info/inful/appforge/internal/publish"
	"git.home.luguber.info/inful/appforge/internal/staging"
	"git.home.luguber.info/inful/appforge/internal/state"
	"git.home.luguber.info/inful/appforge/internal/task"
)

// ErrNoPriorState aborts a revision whose task has no recorded repository.
var ErrNoPriorState = derrors.StateError("no prior state for revision").Build()

// Synchronizer publishes and reads back repository content.
type Synchronizer interface {
	Publish(ctx context.Context, req publish.Request) (publish.Result, error)
	ReadBack(ctx context.Context, repoName string) (publish.Snapshot, error)
}

// Stager materializes request attachments for one run.
type Stager interface {
	Stage(taskID string, attachments []task.Attachment) []staging.Staged
	Release(staged []staging.Staged)
}

// Notifier delivers the result payload to the caller.
type Notifier interface {
	Deliver(ctx context.Context, endpoint string, payload notify.Payload) error
}

// HistoryRecorder receives one event per finished phase.
type HistoryRecorder interface {
	Append(ctx context.Context, e history.Event) error
}

// OutcomePublisher fans out the final outcome of a run.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, e events.OutcomeEvent) error
}

// Dependencies are the collaborators every run needs.
type Dependencies struct {
	State     state.Store
	Sync      Synchronizer
	Stager    Stager
	Generator generate.Adapter
	Notifier  Notifier
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithHistory records phase results in h.
func WithHistory(h HistoryRecorder) Option {
	return func(o *Orchestrator) {
		if h != nil {
			o.history = h
		}
	}
}

// WithOutcomePublisher publishes every final outcome to p.
func WithOutcomePublisher(p OutcomePublisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.events = p
		}
	}
}

// WithRepoPrefix sets the prefix of derived repository names.
func WithRepoPrefix(prefix string) Option {
	return func(o *Orchestrator) { o.repoPrefix = prefix }
}

// WithSerializeRounds holds a per-task lock for the whole run, so rounds of
// one task never overlap.
func WithSerializeRounds(enabled bool) Option {
	return func(o *Orchestrator) {
		if enabled {
			o.locks = newKeyedMutex()
		} else {
			o.locks = nil
		}
	}
}

// Orchestrator runs build tasks phase by phase.
type Orchestrator struct {
	deps       Dependencies
	recorder   metrics.Recorder
	history    HistoryRecorder
	events     OutcomePublisher
	repoPrefix string
	locks      *keyedMutex
}

// New creates an orchestrator.
func New(deps Dependencies, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:       deps,
		recorder:   metrics.NoopRecorder{},
		history:    history.NoopStore{},
		events:     events.NoopPublisher{},
		repoPrefix: "llm-app",
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run carries the data produced by one phase for the next.
type run struct {
	task     *task.BuildTask
	repoName string
	existing map[string]string
	staged   []staging.Staged
	files    generate.FileSet
	result   publish.Result
	payload  *notify.Payload
	notified bool
}

type phaseFunc func(ctx context.Context, r *run) PhaseResult

type phaseStep struct {
	name Phase
	fn   phaseFunc
}

// Handle adapts Run to the worker queue: an aborted run is an error.
func (o *Orchestrator) Handle(ctx context.Context, t *task.BuildTask) error {
	return o.Run(ctx, t).Err()
}

// Run executes every phase for t in order. It never panics; failures are
// reported through the returned Outcome.
func (o *Orchestrator) Run(ctx context.Context, t *task.BuildTask) (out Outcome) {
	start := time.Now()
	runID := uuid.NewString()
	out = Outcome{RunID: runID, TaskID: t.TaskID, Round: t.Round, Status: StatusSuccess}

	ctx = observability.WithTaskID(ctx, t.TaskID, t.Round)
	ctx = observability.WithRunID(ctx, runID)

	if o.locks != nil {
		unlock := o.locks.Lock(t.TaskID)
		defer unlock()
	}

	r := &run{task: t}
	observability.InfoContext(ctx, "Starting build run")

	defer func() {
		if rec := recover(); rec != nil {
			err := derrors.InternalError("build run panicked").
				WithContext("panic", fmt.Sprint(rec)).
				Build()
			observability.ErrorContext(ctx, "Build run panicked",
				logfields.Error(err), slog.String("stack", string(debug.Stack())))
			res := abort("panic", err)
			res.Phase = PhaseInternal
			o.record(ctx, &out, res)
		}
		o.record(ctx, &out, o.timed(ctx, PhaseCleanup, r, o.cleanup))
		o.finish(ctx, &out, r, start)
	}()

	steps := []phaseStep{
		{PhaseState, o.loadState},
		{PhaseSnapshot, o.readSnapshot},
		{PhaseStage, o.stage},
		{PhaseGenerate, o.generate},
		{PhaseValidate, o.validate},
		{PhasePublish, o.publish},
		{PhasePersist, o.persist},
		{PhaseNotify, o.notify},
	}
	for _, step := range steps {
		res := o.timed(ctx, step.name, r, step.fn)
		o.record(ctx, &out, res)
		if res.Status == StatusAbort {
			break
		}
	}
	return out
}

func (o *Orchestrator) timed(ctx context.Context, p Phase, r *run, fn phaseFunc) PhaseResult {
	start := time.Now()
	res := fn(observability.WithPhase(ctx, string(p)), r)
	res.Phase = p
	res.Duration = time.Since(start)
	return res
}

// record appends res to the outcome and reports it to history and metrics.
func (o *Orchestrator) record(ctx context.Context, out *Outcome, res PhaseResult) {
	out.Phases = append(out.Phases, res)
	if res.Status == StatusAbort && out.Status != StatusAbort {
		out.Status = StatusAbort
		out.FailedPhase = res.Phase
		out.Reason = res.message()
	}

	o.recorder.ObservePhaseDuration(string(res.Phase), res.Duration)
	o.recorder.IncPhaseResult(string(res.Phase), metrics.ResultLabel(res.Status))

	err := o.history.Append(ctx, history.Event{
		RunID:   out.RunID,
		TaskID:  out.TaskID,
		Round:   out.Round,
		Phase:   string(res.Phase),
		Status:  string(res.Status),
		Message: res.message(),
	})
	if err != nil {
		observability.WarnContext(ctx, "Failed to record run history", logfields.Error(err))
	}
}

func (o *Orchestrator) finish(ctx context.Context, out *Outcome, r *run, start time.Time) {
	out.RepoName = r.result.RepoName
	out.RepoURL = r.result.RepoURL
	out.SiteURL = r.result.SiteURL
	out.CommitID = r.result.CommitID
	out.Notification = r.payload
	out.Notified = r.notified
	out.Duration = time.Since(start)

	o.recorder.ObserveRunDuration(out.Duration)
	o.recorder.IncRunOutcome(string(out.Status))

	err := o.events.PublishOutcome(ctx, events.OutcomeEvent{
		RunID:       out.RunID,
		TaskID:      out.TaskID,
		Round:       out.Round,
		Status:      string(out.Status),
		FailedPhase: string(out.FailedPhase),
		Reason:      out.Reason,
		RepoURL:     out.RepoURL,
		CommitSHA:   out.CommitID,
		PagesURL:    out.SiteURL,
		Notified:    out.Notified,
	})
	if err != nil {
		observability.WarnContext(ctx, "Failed to publish run outcome", logfields.Error(err))
	}

	attrs := []slog.Attr{
		logfields.Status(string(out.Status)),
		logfields.DurationMS(float64(out.Duration.Milliseconds())),
	}
	if out.Status == StatusAbort {
		attrs = append(attrs, slog.String("failed_phase", string(out.FailedPhase)), logfields.Reason(out.Reason))
		observability.ErrorContext(ctx, "Build run aborted", attrs...)
		return
	}
	observability.InfoContext(ctx, "Build run finished", attrs...)
}

func (o *Orchestrator) loadState(ctx context.Context, r *run) PhaseResult {
	if !r.task.IsRevision() {
		r.repoName = publish.RepoName(o.repoPrefix, r.task.TaskID, r.task.RepoName)
		return skip("first round")
	}
	st, ok := o.deps.State.Get(r.task.TaskID)
	if !ok || st.RepoName == "" {
		observability.ErrorContext(ctx, "No previous state found; cannot perform revision")
		return abort("no prior state", ErrNoPriorState.WithContext("task", r.task.TaskID))
	}
	r.repoName = st.RepoName
	return success(st.RepoName)
}

func (o *Orchestrator) readSnapshot(ctx context.Context, r *run) PhaseResult {
	if !r.task.IsRevision() {
		return skip("first round")
	}
	snap, err := o.deps.Sync.ReadBack(ctx, r.repoName)
	if err != nil {
		return abort("snapshot read failed", err)
	}
	if len(snap.Files) == 0 {
		observability.WarnContext(ctx, "Repository snapshot is empty; generating without prior code",
			logfields.Repository(r.repoName))
		return skip("empty snapshot")
	}
	r.existing = snap.Files
	return success(fmt.Sprintf("%d files", len(snap.Files)))
}

func (o *Orchestrator) stage(ctx context.Context, r *run) PhaseResult {
	if len(r.task.Attachments) == 0 {
		return skip("no attachments")
	}
	r.staged = o.deps.Stager.Stage(r.task.TaskID, r.task.Attachments)
	observability.InfoContext(ctx, "Attachments staged",
		slog.Int("staged", len(r.staged)), slog.Int("requested", len(r.task.Attachments)))
	return success(fmt.Sprintf("staged %d of %d", len(r.staged), len(r.task.Attachments)))
}

func (o *Orchestrator) generate(ctx context.Context, r *run) PhaseResult {
	files, err := o.deps.Generator.Generate(ctx, generate.Input{
		Brief:       r.task.Brief,
		Checks:      r.task.Checks,
		Round:       r.task.Round,
		Existing:    r.existing,
		Attachments: r.staged,
	})
	if err != nil {
		return abort("generation failed", err)
	}
	r.files = files
	return success(fmt.Sprintf("%d files", len(files)))
}

func (o *Orchestrator) validate(_ context.Context, r *run) PhaseResult {
	if err := r.files.Validate(); err != nil {
		return abort("invalid file set", err)
	}
	return success("")
}

func (o *Orchestrator) publish(ctx context.Context, r *run) PhaseResult {
	res, err := o.deps.Sync.Publish(ctx, publish.Request{
		RepoName: r.repoName,
		Round:    r.task.Round,
		Files:    o.publishFiles(ctx, r),
	})
	if err != nil {
		return abort("publish failed", err)
	}
	r.result = res
	if len(res.Failed) > 0 {
		return success(fmt.Sprintf("%d files failed", len(res.Failed)))
	}
	return success(res.CommitID)
}

// publishFiles orders the generated files by path and swaps in the original
// bytes of any staged attachment with the same name.
func (o *Orchestrator) publishFiles(ctx context.Context, r *run) []publish.File {
	staged := make(map[string]staging.Staged, len(r.staged))
	for _, s := range r.staged {
		staged[s.Name] = s
	}

	files := make([]publish.File, 0, len(r.files))
	for _, p := range r.files.Paths() {
		content := []byte(r.files[p])
		if s, ok := staged[p]; ok {
			data, err := s.Read()
			if err != nil {
				observability.WarnContext(ctx, "Could not read staged attachment; skipping file",
					logfields.Path(p), logfields.Error(err))
				continue
			}
			content = data
		}
		files = append(files, publish.File{Path: p, Content: content})
	}
	return files
}

func (o *Orchestrator) persist(ctx context.Context, r *run) PhaseResult {
	if r.task.IsRevision() {
		return skip("revision round")
	}
	err := o.deps.State.Put(r.task.TaskID, state.TaskState{
		RepoName: r.result.RepoName,
		RepoURL:  r.result.RepoURL,
	})
	if err != nil {
		observability.ErrorContext(ctx, "Failed to persist task state; later revisions will abort",
			logfields.Error(err))
		return PhaseResult{Status: StatusSkip, Reason: "state not persisted", Err: err}
	}
	return success(r.result.RepoName)
}

func (o *Orchestrator) notify(ctx context.Context, r *run) PhaseResult {
	r.payload = &notify.Payload{
		Email:     r.task.Email,
		Task:      r.task.TaskID,
		Round:     r.task.Round,
		Nonce:     r.task.Nonce,
		RepoURL:   r.result.RepoURL,
		CommitSHA: r.result.CommitID,
		PagesURL:  r.result.SiteURL,
		Extra:     r.task.Extra,
	}
	err := o.deps.Notifier.Deliver(ctx, r.task.CallbackURL, *r.payload)
	o.recorder.IncNotification(err == nil)
	if err != nil {
		observability.ErrorContext(ctx, "Notification could not be delivered",
			logfields.Endpoint(r.task.CallbackURL), logfields.Error(err))
		return abort("notification undelivered", err)
	}
	r.notified = true
	return success("")
}

func (o *Orchestrator) cleanup(_ context.Context, r *run) PhaseResult {
	if len(r.staged) == 0 {
		return skip("nothing staged")
	}
	o.deps.Stager.Release(r.staged)
	return success(fmt.Sprintf("released %d", len(r.staged)))
}
