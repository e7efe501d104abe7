package usecase

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/arpan404/img/internal/domain/captions"
	"github.com/arpan404/img/internal/domain/compose"
	"github.com/arpan404/img/internal/domain/crop"
	"github.com/arpan404/img/internal/domain/window"
	"github.com/arpan404/img/internal/types"
)

// planStep runs the segmenter and the window selector concurrently, then
// crops and freezes the composition plan.
func (r *run) planStep(ctx context.Context) error {
	var (
		cues []types.TranscriptCue
		win  types.SourceClipWindow
		geom types.CropGeometry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := r.captionPolicy(gctx)
		if err != nil {
			return err
		}
		seg := captions.NewSegmenter(r.u.o.MaxWords, r.u.o.MaxChars, p)
		cues, err = seg.Segment(r.text, r.narration.Duration)
		return err
	})
	g.Go(func() error {
		var err error
		win, err = r.u.d.Selector.Select(r.source.Path, r.source.Duration, r.narration.Duration)
		return err
	})
	err := g.Wait()
	if err == nil {
		geom, err = crop.Compute(r.source.Width, r.source.Height, r.u.o.Aspect)
	}
	if err == nil {
		r.plan, err = compose.NewBuilder().
			Window(win).
			Crop(geom).
			Narration(r.narration).
			Cues(cues).
			Build()
	}
	if err != nil {
		r.log.Error("composition failed",
			"err", err,
			slog.Group("source", "path", r.source.Path, "duration", r.source.Duration, "width", r.source.Width, "height", r.source.Height),
			slog.Group("narration", "path", r.narration.Path, "duration", r.narration.Duration, "sample_rate", r.narration.SampleRate),
			slog.Group("window", "start", win.StartOffset, "span", win.Span),
			slog.Group("crop", "left", geom.Left, "right", geom.Right),
			"cues", len(cues),
		)
		return fail(compositionKind(err), err)
	}

	plan := r.plan
	r.res.Plan = &plan
	r.log.Debug("plan built", "plan", r.plan)
	return nil
}

// captionPolicy returns the configured policy; aligned captions transcribe
// the narration first and fall back to proportional when that fails.
func (r *run) captionPolicy(ctx context.Context) (captions.Policy, error) {
	if r.u.o.Policy != captions.PolicyAligned {
		return captions.ParsePolicy(r.u.o.Policy)
	}
	words, err := r.u.d.Transcriber.TranscribeWords(ctx, r.narration.Path, r.scratch)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		r.log.Warn("word alignment failed, using proportional captions", "err", err)
		return captions.Proportional{}, nil
	}
	return captions.NewAligned(words), nil
}

func compositionKind(err error) Kind {
	switch {
	case errors.Is(err, window.ErrInsufficientSourceDuration):
		return KindInsufficientSourceDuration
	case errors.Is(err, crop.ErrSourceTooNarrow):
		return KindSourceTooNarrow
	default:
		return KindComposition
	}
}
