package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/arpan404/img/internal/config"
	"github.com/arpan404/img/internal/domain/captions"
	"github.com/arpan404/img/internal/domain/compose"
	"github.com/arpan404/img/internal/domain/crop"
	"github.com/arpan404/img/internal/domain/window"
	"github.com/arpan404/img/internal/logger"
	"github.com/arpan404/img/internal/ports"
	"github.com/arpan404/img/internal/retry"
	"github.com/arpan404/img/internal/types"
)

// Observer receives job and stage events; metrics.Metrics implements it.
type Observer interface {
	JobStarted()
	JobFinished(state, stage, kind string)
	StageDone(stage string, elapsed time.Duration)
	Retried(service string)
}

type Deps struct {
	// Story is only needed for records with a prompt.
	Story    ports.StoryGenerator
	Synth    ports.Synthesizer
	Audio    ports.AudioTool
	Sources  ports.SourceResolver
	Renderer ports.Renderer
	// Transcriber is only needed by the aligned caption policy.
	Transcriber ports.Transcriber
	Selector    *window.Selector
	Logger      *slog.Logger
	Observer    Observer
}

type Options struct {
	MaxWords int
	MaxChars int
	// Policy is a captions policy name; empty means proportional.
	Policy string
	// Speed is the narration tempo factor; 0 means DefaultSpeed.
	Speed float64
	// SynthChunks caps how many synthesizer calls one narration takes.
	SynthChunks int
	Voice       string
	Aspect      float64
	// ScratchRoot holds per-job scratch directories; empty means os.TempDir().
	ScratchRoot string

	StoryRetry  retry.Policy
	SpeechRetry retry.Policy
	SourceRetry retry.Policy
	// RenderAttempts counts the first render; 0 means one retry.
	RenderAttempts int
}

const (
	DefaultSpeed       = 1.25
	DefaultSynthChunks = 4
)

type Usecase struct {
	d Deps
	o Options
}

func New(d Deps, o Options) *Usecase {
	if d.Logger == nil {
		d.Logger = logger.Discard()
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	if o.MaxWords == 0 && o.MaxChars == 0 {
		o.MaxWords = captions.DefaultMaxWords
		o.MaxChars = captions.DefaultMaxChars
	}
	if o.Speed == 0 {
		o.Speed = DefaultSpeed
	}
	if o.SynthChunks <= 0 {
		o.SynthChunks = DefaultSynthChunks
	}
	if o.Aspect == 0 {
		o.Aspect = crop.Vertical
	}
	if o.RenderAttempts <= 0 {
		o.RenderAttempts = 2
	}
	return &Usecase{d: d, o: o}
}

// Job is one video to produce: a content record and the final output path.
type Job struct {
	ID     string
	Name   string
	Record config.Record
	Output string
}

type Result struct {
	JobID       string
	Name        string
	State       State
	Story       string
	Source      types.SourceInfo
	Narration   types.NarrationTrack
	Plan        *compose.Plan
	Output      types.RenderResult
	Transitions []Transition
	Elapsed     time.Duration
}

// Run drives job from Created to Cleaned. On failure the job ends in Failed,
// its scratch directory is removed and the returned error is a *JobError.
func (u *Usecase) Run(ctx context.Context, job Job) (Result, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Name == "" {
		job.Name = job.Record.Name
	}
	r := &run{
		u:   u,
		job: job,
		log: u.d.Logger.With("job_id", job.ID, "name", job.Name),
		res: Result{JobID: job.ID, Name: job.Name, State: Created},
	}

	u.d.Observer.JobStarted()
	start := time.Now()
	err := r.execute(ctx)
	r.res.Elapsed = time.Since(start)

	if err != nil {
		var je *JobError
		errors.As(err, &je)
		u.d.Observer.JobFinished(string(Failed), string(je.Stage), string(je.Kind))
		return r.res, err
	}
	u.d.Observer.JobFinished(string(r.res.State), "", "")
	r.log.Info("job done", "output", r.res.Output.Path, "duration", r.res.Output.Duration, "elapsed", r.res.Elapsed.Round(time.Millisecond))
	return r.res, nil
}

// run holds the state of a single job execution.
type run struct {
	u       *Usecase
	job     Job
	log     *slog.Logger
	res     Result
	scratch string

	text      string
	source    types.SourceInfo
	narration types.NarrationTrack
	plan      compose.Plan
}

type step struct {
	to State
	fn func(ctx context.Context) error
}

func (r *run) execute(ctx context.Context) error {
	steps := []step{
		{StoryReady, r.storyStep},
		{AudioReady, r.narrationStep},
		{PlanBuilt, r.planStep},
		{Rendered, r.renderStep},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return r.fail(s.to, fail(KindCancelled, err))
		}
		started := time.Now()
		if err := s.fn(ctx); err != nil {
			if ctx.Err() != nil {
				err = fail(KindCancelled, errors.Join(ctx.Err(), err))
			}
			return r.fail(s.to, err)
		}
		r.advance(s.to, time.Since(started))
	}

	started := time.Now()
	r.cleanup()
	r.advance(Cleaned, time.Since(started))
	return nil
}

func (r *run) advance(to State, elapsed time.Duration) {
	from := r.res.State
	if !CanTransition(from, to) {
		panic(fmt.Sprintf("usecase: illegal transition %s -> %s", from, to))
	}
	r.res.State = to
	r.res.Transitions = append(r.res.Transitions, Transition{From: from, To: to, Elapsed: elapsed})
	r.u.d.Observer.StageDone(string(to), elapsed)
	r.log.Info("transition", "from", from, "to", to, "elapsed", elapsed.Round(time.Millisecond))
}

// fail moves the job to Failed after removing every artifact it created.
func (r *run) fail(stage State, err error) error {
	kind := KindComposition
	var se stageError
	if errors.As(err, &se) {
		kind = se.kind
		err = se.err
	}
	r.cleanup()

	from := r.res.State
	r.res.State = Failed
	r.res.Transitions = append(r.res.Transitions, Transition{From: from, To: Failed})
	r.log.Error("job failed", "stage", stage, "kind", kind, "err", err)
	return &JobError{JobID: r.job.ID, Stage: stage, Kind: kind, Err: err}
}

func (r *run) cleanup() {
	if r.scratch == "" {
		return
	}
	if err := os.RemoveAll(r.scratch); err != nil {
		r.log.Warn("remove scratch dir", "dir", r.scratch, "err", err)
		return
	}
	r.scratch = ""
}

// storyStep validates the job, resolves its source and produces the narration text.
func (r *run) storyStep(ctx context.Context) error {
	rec := r.job.Record
	if err := rec.Validate(); err != nil {
		return fail(KindConfiguration, err)
	}
	if err := r.u.checkDeps(rec); err != nil {
		return fail(KindConfiguration, err)
	}
	if r.job.Output == "" {
		return failf(KindConfiguration, "no output path")
	}

	root := r.u.o.ScratchRoot
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fail(KindConfiguration, fmt.Errorf("scratch root: %w", err))
	}
	dir, err := os.MkdirTemp(root, "job-"+r.job.ID+"-")
	if err != nil {
		return fail(KindConfiguration, fmt.Errorf("scratch dir: %w", err))
	}
	r.scratch = dir

	// Sources are checked before any billable call.
	err = retry.Do(ctx, r.policy(r.u.o.SourceRetry, "source"), func(ctx context.Context) error {
		info, err := r.u.d.Sources.Resolve(ctx, rec.Video, r.scratch)
		if err != nil {
			return err
		}
		r.source = info
		return nil
	})
	if err != nil {
		return fail(KindSourceUnavailable, err)
	}
	r.res.Source = r.source

	if !rec.Generated() {
		r.text = captions.CleanStory(rec.Story)
		if r.text == "" {
			return failf(KindConfiguration, "story %q is empty after cleaning", rec.Name)
		}
		r.res.Story = r.text
		return nil
	}

	var raw string
	err = retry.Do(ctx, r.policy(r.u.o.StoryRetry, "story"), func(ctx context.Context) error {
		s, err := r.u.d.Story.Generate(ctx, rec.Prompt)
		if err != nil {
			return err
		}
		raw = s
		return nil
	})
	if err != nil {
		return fail(KindStoryGeneration, err)
	}
	r.text = captions.CleanStory(raw)
	if r.text == "" {
		return failf(KindStoryGeneration, "generated story is empty after cleaning")
	}
	r.res.Story = r.text
	r.log.Debug("story generated", "chars", len(r.text))
	return nil
}

func (r *run) narrationStep(ctx context.Context) error {
	n, err := r.narrate(ctx)
	if err != nil {
		return fail(KindAudioSynthesis, err)
	}
	r.narration = n
	r.res.Narration = n
	return nil
}

func (r *run) renderStep(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= r.u.o.RenderAttempts; attempt++ {
		var out types.RenderResult
		out, err = r.u.d.Renderer.Render(ctx, r.plan, r.job.Output)
		if err == nil {
			r.res.Output = out
			return nil
		}
		if ctx.Err() != nil || attempt == r.u.o.RenderAttempts {
			break
		}
		r.log.Warn("render failed, retrying", "attempt", attempt, "err", err)
		r.u.d.Observer.Retried("render")
	}
	return fail(KindRender, err)
}

// policy fills defaults and hooks retry logging and metrics into p.
func (r *run) policy(p retry.Policy, service string) retry.Policy {
	if p.Attempts == 0 {
		lim := p.Limiter
		p = retry.DefaultPolicy()
		p.Limiter = lim
	}
	p.OnRetry = func(attempt int, wait time.Duration, err error) {
		r.log.Warn("retrying", "service", service, "attempt", attempt, "wait", wait, "err", err)
		r.u.d.Observer.Retried(service)
	}
	return p
}

func (u *Usecase) checkDeps(rec config.Record) error {
	switch {
	case u.d.Sources == nil:
		return errors.New("no source resolver configured")
	case u.d.Synth == nil || u.d.Audio == nil:
		return errors.New("no speech synthesizer configured")
	case u.d.Renderer == nil:
		return errors.New("no renderer configured")
	case u.d.Selector == nil:
		return errors.New("no window selector configured")
	case rec.Generated() && u.d.Story == nil:
		return fmt.Errorf("record %q has a prompt but no story generator is configured", rec.Name)
	}
	if _, err := u.captionPolicy(); err != nil {
		return err
	}
	return nil
}

// policy returns the configured caption policy. Aligned needs a transcriber
// and is built per job from the narration's word timings.
func (u *Usecase) captionPolicy() (captions.Policy, error) {
	if u.o.Policy == captions.PolicyAligned {
		if u.d.Transcriber == nil {
			return nil, errors.New("aligned captions need a transcriber")
		}
		return nil, nil
	}
	return captions.ParsePolicy(u.o.Policy)
}

type nopObserver struct{}

func (nopObserver) JobStarted()                     {}
func (nopObserver) JobFinished(_, _, _ string)      {}
func (nopObserver) StageDone(string, time.Duration) {}
func (nopObserver) Retried(string)                  {}
