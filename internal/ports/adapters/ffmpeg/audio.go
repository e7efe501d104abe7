package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ExtractAudioMono16k writes the 16 kHz mono WAV whisper.cpp expects.
func (a *Adapter) ExtractAudioMono16k(ctx context.Context, in, outWav string) error {
	args := ffmpeg.Input(in).
		Output(outWav, ffmpeg.KwArgs{"vn": "", "ac": 1, "ar": 16000, "f": "wav"}).
		OverWriteOutput().
		GetArgs()
	return a.run(ctx, "extract audio", args)
}

// Concat joins audio parts in order into one file.
func (a *Adapter) Concat(ctx context.Context, parts []string, outPath string) error {
	args, err := concatArgs(parts, outPath)
	if err != nil {
		return err
	}
	return a.run(ctx, "concat audio", args)
}

func concatArgs(parts []string, outPath string) ([]string, error) {
	if len(parts) == 0 {
		return nil, errors.New("concat: no parts")
	}
	streams := make([]*ffmpeg.Stream, 0, len(parts))
	for _, p := range parts {
		streams = append(streams, ffmpeg.Input(p).Audio())
	}
	var joined *ffmpeg.Stream
	if len(streams) == 1 {
		joined = streams[0]
	} else {
		joined = ffmpeg.Concat(streams, ffmpeg.KwArgs{"v": 0, "a": 1})
	}
	return ffmpeg.Output([]*ffmpeg.Stream{joined}, outPath).OverWriteOutput().GetArgs(), nil
}

// ChangeTempo speeds narration up (factor > 1) or down without changing pitch.
func (a *Adapter) ChangeTempo(ctx context.Context, inPath, outPath string, factor float64) error {
	args, err := tempoArgs(inPath, outPath, factor)
	if err != nil {
		return err
	}
	return a.run(ctx, "change tempo", args)
}

func tempoArgs(inPath, outPath string, factor float64) ([]string, error) {
	chain, err := atempoChain(factor)
	if err != nil {
		return nil, err
	}
	s := ffmpeg.Input(inPath).Audio()
	for _, f := range chain {
		s = s.Filter("atempo", ffmpeg.Args{strconv.FormatFloat(f, 'f', -1, 64)})
	}
	return ffmpeg.Output([]*ffmpeg.Stream{s}, outPath).OverWriteOutput().GetArgs(), nil
}

// atempoChain splits factor into steps inside the [0.5, 2] range a single
// atempo filter accepts.
func atempoChain(factor float64) ([]float64, error) {
	if math.IsNaN(factor) || factor <= 0 || math.IsInf(factor, 0) {
		return nil, fmt.Errorf("tempo factor must be > 0, got %v", factor)
	}
	var out []float64
	for factor > 2 {
		out = append(out, 2)
		factor /= 2
	}
	for factor < 0.5 {
		out = append(out, 0.5)
		factor /= 0.5
	}
	return append(out, factor), nil
}
