package espeak

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/arpan404/img/internal/ports"
)

// Adapter synthesizes speech offline with espeak-ng.
type Adapter struct {
	bin string
	wpm int
}

func New(binPath string, wordsPerMinute int) *Adapter {
	if binPath == "" {
		binPath = "espeak-ng"
	}
	if wordsPerMinute <= 0 {
		wordsPerMinute = 165
	}
	return &Adapter{bin: binPath, wpm: wordsPerMinute}
}

func (a *Adapter) Ext() string { return ".wav" }

func (a *Adapter) Synthesize(ctx context.Context, text string, opts ports.SpeechOptions, outPath string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("espeak-ng: empty text")
	}
	cmd := exec.CommandContext(ctx, a.bin, a.args(opts, outPath)...)
	cmd.Stdin = strings.NewReader(text)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("espeak-ng: %w\n%s", err, string(b))
	}
	return nil
}

func (a *Adapter) args(opts ports.SpeechOptions, outPath string) []string {
	voice := opts.Voice
	if voice == "" {
		voice = opts.Language
	}
	args := []string{"-s", strconv.Itoa(a.wpm), "-w", outPath, "--stdin"}
	if voice != "" {
		args = append([]string{"-v", voice}, args...)
	}
	return args
}
