package window

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/arpan404/img/internal/types"
)

var ErrInsufficientSourceDuration = errors.New("insufficient source duration")

// Selector picks a random sub-range of a source video. The random source is
// injected so runs can be reproduced from a seed.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func New(rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{rng: rng}
}

func NewSeeded(seed uint64) *Selector {
	return New(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Select returns a window of exactly required seconds with a start offset
// drawn uniformly from [0, sourceDuration-required).
func (s *Selector) Select(sourcePath string, sourceDuration, required float64) (types.SourceClipWindow, error) {
	if !finite(sourceDuration) || !finite(required) || sourceDuration < 0 || required < 0 {
		return types.SourceClipWindow{}, fmt.Errorf("select window: invalid durations source=%v required=%v", sourceDuration, required)
	}
	if sourceDuration < required {
		return types.SourceClipWindow{}, fmt.Errorf("%w: source %.3fs < required %.3fs", ErrInsufficientSourceDuration, sourceDuration, required)
	}

	slack := sourceDuration - required
	offset := 0.0
	if slack > 0 {
		s.mu.Lock()
		offset = s.rng.Float64() * slack
		s.mu.Unlock()
	}
	return types.SourceClipWindow{SourcePath: sourcePath, StartOffset: offset, Span: required}, nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
