package usecase

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/arpan404/img/internal/ports"
	"github.com/arpan404/img/internal/retry"
	"github.com/arpan404/img/internal/types"
)

var sentenceRE = regexp.MustCompile(`[^.!?]+[.!?]*|[.!?]+`)

// narrate synthesizes the story in chunks, joins them, applies the tempo
// change and probes the result.
func (r *run) narrate(ctx context.Context) (types.NarrationTrack, error) {
	synth := r.u.d.Synth
	audio := r.u.d.Audio
	opts := ports.SpeechOptions{Language: r.job.Record.Lang(), Voice: r.u.o.Voice}

	chunks := splitChunks(r.text, r.u.o.SynthChunks)
	parts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		p := filepath.Join(r.scratch, fmt.Sprintf("narration-%02d%s", i, synth.Ext()))
		err := retry.Do(ctx, r.policy(r.u.o.SpeechRetry, "speech"), func(ctx context.Context) error {
			return synth.Synthesize(ctx, c, opts, p)
		})
		if err != nil {
			return types.NarrationTrack{}, fmt.Errorf("synthesize chunk %d/%d: %w", i+1, len(chunks), err)
		}
		parts = append(parts, p)
	}
	r.log.Debug("narration synthesized", "chunks", len(parts))

	joined := parts[0]
	if len(parts) > 1 {
		joined = filepath.Join(r.scratch, "narration-joined.wav")
		if err := audio.Concat(ctx, parts, joined); err != nil {
			return types.NarrationTrack{}, err
		}
	}

	final := joined
	if math.Abs(r.u.o.Speed-1) > 1e-9 {
		final = filepath.Join(r.scratch, "narration.wav")
		if err := audio.ChangeTempo(ctx, joined, final, r.u.o.Speed); err != nil {
			return types.NarrationTrack{}, err
		}
	}

	info, err := audio.ProbeAudio(ctx, final)
	if err != nil {
		return types.NarrationTrack{}, err
	}
	if info.Duration <= 0 || info.SampleRate <= 0 {
		return types.NarrationTrack{}, fmt.Errorf("narration %s: duration %.3fs, sample rate %d", final, info.Duration, info.SampleRate)
	}
	return types.NarrationTrack{Path: final, Duration: info.Duration, SampleRate: info.SampleRate}, nil
}

// splitChunks cuts text into at most maxChunks pieces of similar length at
// sentence ends. No text is dropped.
func splitChunks(text string, maxChunks int) []string {
	text = strings.TrimSpace(text)
	var sentences []string
	for _, s := range sentenceRE.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if maxChunks <= 1 || len(sentences) <= 1 {
		return []string{text}
	}

	target := max(1, utf8.RuneCountInString(text)/maxChunks)
	var out []string
	var cur strings.Builder
	for i, s := range sentences {
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(s)
		last := i == len(sentences)-1
		if !last && len(out) < maxChunks-1 && utf8.RuneCountInString(cur.String()) >= target {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
