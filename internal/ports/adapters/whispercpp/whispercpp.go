package whispercpp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/arpan404/img/internal/types"
)

// Extractor converts any audio into the 16 kHz mono WAV whisper.cpp reads.
type Extractor interface {
	ExtractAudioMono16k(ctx context.Context, in, outWav string) error
}

type Adapter struct {
	bin   string
	model string
	ext   Extractor
}

func New(binPath, modelPath string, ext Extractor) *Adapter {
	return &Adapter{bin: binPath, model: modelPath, ext: ext}
}

type transcript struct {
	Segments []struct {
		Words []types.Word `json:"words"`
	} `json:"segments"`
}

// TranscribeWords recognizes narration audio and returns word timings in order.
func (a *Adapter) TranscribeWords(ctx context.Context, audioPath, workDir string) ([]types.Word, error) {
	wav := filepath.Join(workDir, "asr.wav")
	if err := a.ext.ExtractAudioMono16k(ctx, audioPath, wav); err != nil {
		return nil, err
	}
	defer os.Remove(wav)

	outPrefix := filepath.Join(workDir, "whisper")
	args := []string{
		"-m", a.model,
		"-f", wav,
		"-oj",
		"-of", outPrefix,
		"-owts",
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp failed: %w\n%s", err, string(b))
	}
	defer os.Remove(outPrefix + ".json")

	jb, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return nil, err
	}
	return parseWords(jb)
}

func parseWords(jb []byte) ([]types.Word, error) {
	var tr transcript
	if err := json.Unmarshal(jb, &tr); err != nil {
		return nil, fmt.Errorf("parse whisper.cpp json: %w", err)
	}
	var out []types.Word
	for _, s := range tr.Segments {
		for _, w := range s.Words {
			w.Word = strings.TrimSpace(w.Word)
			if w.Word == "" {
				continue
			}
			out = append(out, w)
		}
	}
	return out, nil
}
