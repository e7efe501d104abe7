package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/arpan404/img/internal/domain/captions"
	"github.com/arpan404/img/internal/domain/compose"
	"github.com/arpan404/img/internal/types"
)

// Render encodes plan into outPath. The encode goes to a hidden partial file
// in the same directory, which is renamed onto outPath only after ffmpeg
// succeeds, so outPath is either complete or absent.
func (a *Adapter) Render(ctx context.Context, plan compose.Plan, outPath string) (types.RenderResult, error) {
	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.RenderResult{}, fmt.Errorf("render: %w", err)
	}

	assPath := ""
	if len(plan.Cues()) > 0 {
		p, err := writeCaptions(dir, plan)
		if err != nil {
			return types.RenderResult{}, err
		}
		defer os.Remove(p)
		assPath = p
	}

	partial := partialPath(outPath)
	defer os.Remove(partial)

	if err := a.run(ctx, "render", a.renderArgs(plan, assPath, partial)); err != nil {
		return types.RenderResult{}, err
	}
	if err := os.Rename(partial, outPath); err != nil {
		return types.RenderResult{}, fmt.Errorf("render: move into place: %w", err)
	}

	res := types.RenderResult{Path: outPath}
	if st, err := os.Stat(outPath); err == nil {
		res.Bytes = st.Size()
	}
	if info, err := a.ProbeVideo(ctx, outPath); err == nil {
		res.Duration = info.Duration
	}
	return res, nil
}

func partialPath(outPath string) string {
	ext := filepath.Ext(outPath)
	base := filepath.Base(outPath[:len(outPath)-len(ext)])
	if ext == "" {
		ext = ".mp4"
	}
	return filepath.Join(filepath.Dir(outPath), "."+base+".partial"+ext)
}

func writeCaptions(dir string, plan compose.Plan) (string, error) {
	c := plan.Crop()
	doc, err := captions.RenderASS(plan.Cues(), captions.Frame{Width: c.Width(), Height: c.SourceHeight})
	if err != nil {
		return "", fmt.Errorf("render captions: %w", err)
	}
	f, err := os.CreateTemp(dir, ".captions-*.ass")
	if err != nil {
		return "", fmt.Errorf("render captions: %w", err)
	}
	_, werr := f.WriteString(doc)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("render captions: %w", err)
	}
	return f.Name(), nil
}

// renderArgs trims the source to the window, keeps only its video, crops it,
// burns captions and maps the loudness-normalized narration as the sole audio.
func (a *Adapter) renderArgs(plan compose.Plan, assPath, outPath string) []string {
	w := plan.Window()
	c := plan.Crop()
	n := plan.Narration()

	video := ffmpeg.Input(w.SourcePath, ffmpeg.KwArgs{
		"ss": fmtSeconds(w.StartOffset),
		"t":  fmtSeconds(w.Span),
	}).Video().
		Filter("crop", ffmpeg.Args{}, ffmpeg.KwArgs{
			"w": c.Width(),
			"h": c.SourceHeight,
			"x": c.Left,
			"y": 0,
		}).
		Filter("scale", ffmpeg.Args{"trunc(iw/2)*2", "trunc(ih/2)*2"}).
		Filter("setsar", ffmpeg.Args{"1"})
	if assPath != "" {
		video = video.Filter("ass", ffmpeg.Args{filepath.ToSlash(assPath)})
	}

	audio := ffmpeg.Input(n.Path).Audio().
		Filter("loudnorm", ffmpeg.Args{}, ffmpeg.KwArgs{"I": -16, "TP": -1.5, "LRA": 11})

	return ffmpeg.Output([]*ffmpeg.Stream{video, audio}, outPath, ffmpeg.KwArgs{
		"c:v":      "libx264",
		"preset":   a.preset,
		"crf":      a.crf,
		"pix_fmt":  "yuv420p",
		"c:a":      "aac",
		"b:a":      "192k",
		"ar":       48000,
		"t":        fmtSeconds(n.Duration),
		"movflags": "+faststart",
	}).GlobalArgs("-hide_banner", "-loglevel", "error").OverWriteOutput().GetArgs()
}
