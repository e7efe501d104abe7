package crop

import (
	"errors"
	"fmt"
	"math"

	"github.com/arpan404/img/internal/types"
)

// Vertical is the 9:16 width/height ratio of short-form video.
const Vertical = 9.0 / 16.0

var ErrSourceTooNarrow = errors.New("source too narrow")

// Compute returns the full-height horizontal crop that turns a width x height
// frame into the target aspect. When the margin is odd the extra pixel goes
// to the right so Right-Left always equals the content width.
func Compute(width, height int, aspect float64) (types.CropGeometry, error) {
	if width <= 0 || height <= 0 {
		return types.CropGeometry{}, fmt.Errorf("crop: invalid frame %dx%d", width, height)
	}
	if math.IsNaN(aspect) || math.IsInf(aspect, 0) || aspect <= 0 {
		return types.CropGeometry{}, fmt.Errorf("crop: invalid aspect %v", aspect)
	}

	content := ContentWidth(height, aspect)
	if content > width {
		return types.CropGeometry{}, fmt.Errorf("%w: need %dpx of width for %dpx height, have %dpx", ErrSourceTooNarrow, content, height, width)
	}
	left := (width - content) / 2
	return types.CropGeometry{
		Left:         left,
		Right:        left + content,
		SourceWidth:  width,
		SourceHeight: height,
		TargetAspect: aspect,
	}, nil
}

func ContentWidth(height int, aspect float64) int {
	return int(math.Round(float64(height) * aspect))
}
