package captions

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/arpan404/img/internal/types"
)

const (
	DefaultMaxWords = 3
	DefaultMaxChars = 32
)

// Group is a run of consecutive transcript words that becomes one cue.
type Group struct {
	Words []string
	// First is the index of Words[0] in the tokenized transcript.
	First int
}

func (g Group) Text() string { return strings.Join(g.Words, " ") }

// Chars counts runes including single separating spaces.
func (g Group) Chars() int { return utf8.RuneCountInString(g.Text()) }

// Segmenter splits narration text into caption-sized cues laid out over the
// narration timeline. Zero MaxWords or MaxChars disables that limit.
type Segmenter struct {
	MaxWords int
	MaxChars int
	Policy   Policy
}

func NewSegmenter(maxWords, maxChars int, p Policy) Segmenter {
	return Segmenter{MaxWords: maxWords, MaxChars: maxChars, Policy: p}
}

// Segment returns contiguous cues starting at 0 whose last end never exceeds total.
func (s Segmenter) Segment(transcript string, total float64) ([]types.TranscriptCue, error) {
	words := strings.Fields(transcript)
	if len(words) == 0 {
		return nil, nil
	}
	if math.IsNaN(total) || math.IsInf(total, 0) || total <= 0 {
		return nil, fmt.Errorf("segment: total duration must be > 0, got %v", total)
	}
	p := s.Policy
	if p == nil {
		p = Proportional{}
	}

	groups := GroupWords(words, s.MaxWords, s.MaxChars)
	durs, err := p.Durations(groups, len(words), total)
	if err != nil {
		return nil, fmt.Errorf("segment: %s: %w", p.Name(), err)
	}
	if len(durs) != len(groups) {
		return nil, fmt.Errorf("segment: %s returned %d durations for %d groups", p.Name(), len(durs), len(groups))
	}
	return layout(groups, durs, total, fillsTotal(p))
}

// GroupWords packs words greedily: a word starts a new group when adding it to
// a non-empty group would break either budget. Oversized words stand alone.
func GroupWords(words []string, maxWords, maxChars int) []Group {
	var out []Group
	cur := Group{}
	curLen := 0
	for i, w := range words {
		wl := utf8.RuneCountInString(w)
		if len(cur.Words) > 0 {
			tooMany := maxWords > 0 && len(cur.Words)+1 > maxWords
			tooLong := maxChars > 0 && curLen+1+wl > maxChars
			if tooMany || tooLong {
				out = append(out, cur)
				cur = Group{First: i}
				curLen = 0
			}
		}
		if len(cur.Words) == 0 {
			cur.First = i
		} else {
			curLen++
		}
		cur.Words = append(cur.Words, w)
		curLen += wl
	}
	if len(cur.Words) > 0 {
		out = append(out, cur)
	}
	return out
}

var errNonPositive = errors.New("non-positive duration")

// layout turns per-group durations into contiguous cues. If the naive sum
// overshoots total every duration is scaled down by the same factor. With
// fill set the last cue absorbs float drift and ends exactly at total.
func layout(groups []Group, durs []float64, total float64, fill bool) ([]types.TranscriptCue, error) {
	sum := 0.0
	for i, d := range durs {
		if math.IsNaN(d) || d <= 0 {
			return nil, fmt.Errorf("segment: cue %d: %w", i, errNonPositive)
		}
		sum += d
	}
	if sum > total {
		k := total / sum
		for i := range durs {
			durs[i] *= k
		}
	}

	cues := make([]types.TranscriptCue, len(groups))
	start := 0.0
	for i, g := range groups {
		d := durs[i]
		if i == len(groups)-1 && (fill || start+d > total) && total-start > 0 {
			d = total - start
		}
		cues[i] = types.TranscriptCue{Text: g.Text(), Start: start, Duration: d}
		start += d
	}
	return cues, nil
}
