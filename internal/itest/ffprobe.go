//go:build integration

package itest

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

type probed struct {
	Duration float64
	Width    int
	Height   int
	HasAudio bool
}

func probe(path string) (probed, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration:stream=codec_type,width,height",
		"-of", "json",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return probed{}, fmt.Errorf("ffprobe: %w\n%s", err, string(b))
	}
	var out struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return probed{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	var p probed
	p.Duration, err = strconv.ParseFloat(out.Format.Duration, 64)
	if err != nil {
		return probed{}, fmt.Errorf("parse duration %q: %w", out.Format.Duration, err)
	}
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			p.Width, p.Height = s.Width, s.Height
		case "audio":
			p.HasAudio = true
		}
	}
	return p, nil
}
