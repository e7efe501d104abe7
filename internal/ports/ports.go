package ports

import (
	"context"

	"github.com/arpan404/img/internal/domain/compose"
	"github.com/arpan404/img/internal/types"
)

type StoryGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type SpeechOptions struct {
	Language string
	Voice    string
}

// Synthesizer writes narration for text to outPath. The container is chosen
// by the adapter; callers probe the result.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts SpeechOptions, outPath string) error
	// Ext is the file extension the adapter writes, including the dot.
	Ext() string
}

type AudioTool interface {
	ProbeAudio(ctx context.Context, path string) (types.AudioInfo, error)
	Concat(ctx context.Context, parts []string, outPath string) error
	ChangeTempo(ctx context.Context, inPath, outPath string, factor float64) error
}

type VideoProber interface {
	ProbeVideo(ctx context.Context, path string) (types.SourceInfo, error)
}

// SourceResolver turns a path or URL into a local, probed video. Downloads
// are written under scratchDir, which the caller owns.
type SourceResolver interface {
	Resolve(ctx context.Context, ref, scratchDir string) (types.SourceInfo, error)
}

type Renderer interface {
	Render(ctx context.Context, plan compose.Plan, outPath string) (types.RenderResult, error)
}

type Transcriber interface {
	TranscribeWords(ctx context.Context, audioPath, workDir string) ([]types.Word, error)
}
