package espeak

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arpan404/img/internal/ports"
)

func TestArgs(t *testing.T) {
	a := New("", 0)
	assert.Equal(t, []string{"-v", "fr", "-s", "165", "-w", "out.wav", "--stdin"}, a.args(ports.SpeechOptions{Language: "fr"}, "out.wav"))
	assert.Equal(t, []string{"-v", "en-us", "-s", "165", "-w", "out.wav", "--stdin"}, a.args(ports.SpeechOptions{Language: "en", Voice: "en-us"}, "out.wav"))
	assert.Equal(t, []string{"-s", "165", "-w", "o.wav", "--stdin"}, a.args(ports.SpeechOptions{}, "o.wav"))
	assert.Equal(t, ".wav", a.Ext())
}

func TestSynthesize_PipesTextOnStdin(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "espeak-ng")
	// Writes stdin to the file following -w.
	script := "#!/bin/sh\nwhile [ $# -gt 0 ]; do if [ \"$1\" = -w ]; then out=$2; fi; shift; done\ncat > \"$out\"\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	out := filepath.Join(dir, "n.wav")
	require.NoError(t, New(bin, 0).Synthesize(context.Background(), "hello there", ports.SpeechOptions{Language: "en"}, out))
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "hello there", string(b))

	assert.Error(t, New(bin, 0).Synthesize(context.Background(), "  ", ports.SpeechOptions{}, out))
}
