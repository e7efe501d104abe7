package captions

import (
	"fmt"
	"math"
	"strings"

	"github.com/arpan404/img/internal/types"
)

// Policy allocates a duration to every group. Implementations may ignore
// total; Segmenter scales results down when they overshoot.
type Policy interface {
	Name() string
	Durations(groups []Group, totalWords int, total float64) ([]float64, error)
}

const (
	PolicyProportional = "proportional"
	PolicyHeuristic    = "heuristic"
	PolicyAligned      = "aligned"
)

// ParsePolicy maps a config value to a Policy. Aligned needs word timings and
// is built with NewAligned instead.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyProportional:
		return Proportional{}, nil
	case PolicyHeuristic:
		return DefaultHeuristic(), nil
	default:
		return nil, fmt.Errorf("unknown caption policy %q", name)
	}
}

// Proportional gives every group a share of total equal to its share of words.
type Proportional struct{}

func (Proportional) Name() string { return PolicyProportional }

func (Proportional) Durations(groups []Group, totalWords int, total float64) ([]float64, error) {
	if totalWords <= 0 {
		return nil, fmt.Errorf("no words")
	}
	out := make([]float64, len(groups))
	for i, g := range groups {
		out[i] = float64(len(g.Words)) / float64(totalWords) * total
	}
	return out, nil
}

// Heuristic estimates reading time from text length plus punctuation pauses.
type Heuristic struct {
	PerChar   float64
	PerComma  float64
	PerPeriod float64
}

func DefaultHeuristic() Heuristic {
	return Heuristic{PerChar: 0.1, PerComma: 0.2, PerPeriod: 0.5}
}

func (Heuristic) Name() string { return PolicyHeuristic }

func (h Heuristic) Durations(groups []Group, _ int, _ float64) ([]float64, error) {
	if h.PerChar <= 0 {
		return nil, fmt.Errorf("per-char weight must be > 0")
	}
	out := make([]float64, len(groups))
	for i, g := range groups {
		text := g.Text()
		out[i] = float64(g.Chars())*h.PerChar +
			float64(strings.Count(text, ","))*h.PerComma +
			float64(strings.Count(text, "."))*h.PerPeriod
	}
	return out, nil
}

// Aligned places cue boundaries on recognized word end times. Transcript and
// ASR word counts rarely match, so indexes are mapped proportionally.
type Aligned struct {
	words []types.Word
}

func NewAligned(words []types.Word) Aligned {
	ws := make([]types.Word, 0, len(words))
	for _, w := range words {
		if strings.TrimSpace(w.Word) == "" || w.End <= 0 {
			continue
		}
		ws = append(ws, w)
	}
	return Aligned{words: ws}
}

func (Aligned) Name() string { return PolicyAligned }

func (a Aligned) Durations(groups []Group, totalWords int, total float64) ([]float64, error) {
	if len(a.words) == 0 {
		return Proportional{}.Durations(groups, totalWords, total)
	}
	n := len(a.words)
	out := make([]float64, len(groups))
	prev := 0.0
	for i, g := range groups {
		end := total
		if i < len(groups)-1 {
			k := g.First + len(g.Words)
			idx := int(math.Ceil(float64(k)*float64(n)/float64(totalWords))) - 1
			idx = max(0, min(idx, n-1))
			end = math.Min(a.words[idx].End, total)
		}
		if end <= prev {
			// Collapsed timings; alignment is unusable for this transcript.
			return Proportional{}.Durations(groups, totalWords, total)
		}
		out[i] = end - prev
		prev = end
	}
	return out, nil
}

type filler interface{ fillsTotal() bool }

func (Proportional) fillsTotal() bool { return true }
func (Aligned) fillsTotal() bool      { return true }

func fillsTotal(p Policy) bool {
	f, ok := p.(filler)
	return ok && f.fillsTotal()
}
