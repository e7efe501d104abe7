// Package compose validates the parts of one render and freezes them into a
// Plan. Rendering itself lives behind ports.Renderer.
package compose

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/arpan404/img/internal/types"
)

// Epsilon is the tolerance between the trimmed video span and narration length.
const Epsilon = 0.001

var (
	ErrIncomplete       = errors.New("plan is incomplete")
	ErrDurationMismatch = errors.New("window span does not match narration duration")
	ErrCueOutOfBounds   = errors.New("cue outside narration bounds")
	ErrInvalidPart      = errors.New("invalid plan part")
)

// Plan is everything a renderer needs. It has no exported fields and every
// accessor returns a copy, so a built Plan cannot change.
type Plan struct {
	window    types.SourceClipWindow
	crop      types.CropGeometry
	narration types.NarrationTrack
	cues      []types.TranscriptCue
}

func (p Plan) Window() types.SourceClipWindow { return p.window }
func (p Plan) Crop() types.CropGeometry { return p.crop }
func (p Plan) Narration() types.NarrationTrack { return p.narration }
func (p Plan) Duration() float64 { return p.narration.Duration }

func (p Plan) Cues() []types.TranscriptCue {
	out := make([]types.TranscriptCue, len(p.cues))
	copy(out, p.cues)
	return out
}

// LogValue exposes the full plan state for diagnostics.
func (p Plan) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("window", p.window),
		slog.Any("crop", p.crop),
		slog.Any("narration", p.narration),
		slog.Int("cues", len(p.cues)),
	)
}

func (p Plan) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Window    types.SourceClipWindow `json:"window"`
		Crop      types.CropGeometry     `json:"crop"`
		Narration types.NarrationTrack   `json:"narration"`
		Cues      []types.TranscriptCue  `json:"cues"`
	}{p.window, p.crop, p.narration, p.cues})
}

// Builder collects plan parts. Build validates them together; nothing is
// checked while setting.
type Builder struct {
	window    *types.SourceClipWindow
	crop      *types.CropGeometry
	narration *types.NarrationTrack
	cues      []types.TranscriptCue
	cuesSet   bool
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) Window(w types.SourceClipWindow) *Builder {
	b.window = &w
	return b
}

func (b *Builder) Crop(c types.CropGeometry) *Builder {
	b.crop = &c
	return b
}

func (b *Builder) Narration(n types.NarrationTrack) *Builder {
	b.narration = &n
	return b
}

func (b *Builder) Cues(cues []types.TranscriptCue) *Builder {
	b.cues = make([]types.TranscriptCue, len(cues))
	copy(b.cues, cues)
	b.cuesSet = true
	return b
}

func (b *Builder) Build() (Plan, error) {
	var missing []string
	if b.window == nil {
		missing = append(missing, "window")
	}
	if b.crop == nil {
		missing = append(missing, "crop")
	}
	if b.narration == nil {
		missing = append(missing, "narration")
	}
	if !b.cuesSet {
		missing = append(missing, "cues")
	}
	if len(missing) > 0 {
		return Plan{}, fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
	}

	w, c, n := *b.window, *b.crop, *b.narration
	if w.SourcePath == "" {
		return Plan{}, fmt.Errorf("%w: window has no source path", ErrInvalidPart)
	}
	if w.StartOffset < 0 || w.Span <= 0 {
		return Plan{}, fmt.Errorf("%w: window offset=%.3f span=%.3f", ErrInvalidPart, w.StartOffset, w.Span)
	}
	if c.Left < 0 || c.Width() <= 0 || c.Right > c.SourceWidth || c.SourceHeight <= 0 {
		return Plan{}, fmt.Errorf("%w: crop %+v", ErrInvalidPart, c)
	}
	if n.Path == "" || n.Duration <= 0 || n.SampleRate <= 0 {
		return Plan{}, fmt.Errorf("%w: narration %+v", ErrInvalidPart, n)
	}
	if math.Abs(w.Span-n.Duration) > Epsilon {
		return Plan{}, fmt.Errorf("%w: span %.3fs, narration %.3fs", ErrDurationMismatch, w.Span, n.Duration)
	}
	for i, cue := range b.cues {
		if strings.TrimSpace(cue.Text) == "" {
			return Plan{}, fmt.Errorf("%w: cue %d has no text", ErrInvalidPart, i)
		}
		if cue.Start < 0 || cue.Duration <= 0 || cue.End() > n.Duration+Epsilon {
			return Plan{}, fmt.Errorf("%w: cue %d [%.3f, %.3f) vs narration %.3fs", ErrCueOutOfBounds, i, cue.Start, cue.End(), n.Duration)
		}
	}

	cues := make([]types.TranscriptCue, len(b.cues))
	copy(cues, b.cues)
	return Plan{window: w, crop: c, narration: n, cues: cues}, nil
}

// Build is shorthand for a Builder with every part set.
func Build(w types.SourceClipWindow, c types.CropGeometry, n types.NarrationTrack, cues []types.TranscriptCue) (Plan, error) {
	return NewBuilder().Window(w).Crop(c).Narration(n).Cues(cues).Build()
}
