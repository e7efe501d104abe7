package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/arpan404/img/internal/types"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
	preset  string
	crf     int
}

type Option func(*Adapter)

// WithEncoding overrides the libx264 preset and CRF.
func WithEncoding(preset string, crf int) Option {
	return func(a *Adapter) {
		if preset != "" {
			a.preset = preset
		}
		if crf > 0 {
			a.crf = crf
		}
	}
}

func New(ffmpegPath, ffprobePath string, opts ...Option) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	a := &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath, preset: "veryfast", crf: 18}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) run(ctx context.Context, what string, args []string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg %s: %w\n%s", what, err, string(b))
	}
	return nil
}

type probeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		FrameRate  string `json:"r_frame_rate"`
		SampleRate string `json:"sample_rate"`
		Duration   string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (a *Adapter) probe(ctx context.Context, path string) (probeOutput, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration:stream=codec_type,width,height,r_frame_rate,sample_rate,duration",
		"-of", "json",
		path,
	)
	b, err := cmd.Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return probeOutput{}, fmt.Errorf("ffprobe %s: %w\n%s", path, err, string(ee.Stderr))
		}
		return probeOutput{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(b)
}

func parseProbe(b []byte) (probeOutput, error) {
	var out probeOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return probeOutput{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return out, nil
}

func (a *Adapter) ProbeVideo(ctx context.Context, path string) (types.SourceInfo, error) {
	p, err := a.probe(ctx, path)
	if err != nil {
		return types.SourceInfo{}, err
	}
	return videoInfo(path, p)
}

func videoInfo(path string, p probeOutput) (types.SourceInfo, error) {
	for _, s := range p.Streams {
		if s.CodecType != "video" {
			continue
		}
		d, err := parseSeconds(p.Format.Duration, s.Duration)
		if err != nil {
			return types.SourceInfo{}, fmt.Errorf("%s: %w", path, err)
		}
		if s.Width <= 0 || s.Height <= 0 {
			return types.SourceInfo{}, fmt.Errorf("%s: video stream has no frame size", path)
		}
		return types.SourceInfo{
			Path:     path,
			Duration: d,
			Width:    s.Width,
			Height:   s.Height,
			FPS:      parseRate(s.FrameRate),
		}, nil
	}
	return types.SourceInfo{}, fmt.Errorf("%s: no video stream", path)
}

func (a *Adapter) ProbeAudio(ctx context.Context, path string) (types.AudioInfo, error) {
	p, err := a.probe(ctx, path)
	if err != nil {
		return types.AudioInfo{}, err
	}
	return audioInfo(path, p)
}

func audioInfo(path string, p probeOutput) (types.AudioInfo, error) {
	for _, s := range p.Streams {
		if s.CodecType != "audio" {
			continue
		}
		d, err := parseSeconds(s.Duration, p.Format.Duration)
		if err != nil {
			return types.AudioInfo{}, fmt.Errorf("%s: %w", path, err)
		}
		sr, err := strconv.Atoi(s.SampleRate)
		if err != nil || sr <= 0 {
			return types.AudioInfo{}, fmt.Errorf("%s: bad sample rate %q", path, s.SampleRate)
		}
		return types.AudioInfo{Duration: d, SampleRate: sr}, nil
	}
	return types.AudioInfo{}, fmt.Errorf("%s: no audio stream", path)
}

// parseSeconds returns the first positive duration among candidates.
func parseSeconds(candidates ...string) (float64, error) {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || c == "N/A" {
			continue
		}
		sec, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return 0, fmt.Errorf("parse duration %q: %w", c, err)
		}
		if sec > 0 {
			return sec, nil
		}
	}
	return 0, errors.New("unknown duration")
}

// parseRate turns "30000/1001" into 29.97; malformed rates yield 0.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
