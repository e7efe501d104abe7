package captions

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arpan404/img/internal/types"
)

// Frame is the caption canvas, the cropped output size in pixels.
type Frame struct {
	Width  int
	Height int
}

// RenderASS renders one centered boxed Dialogue per cue, visible exactly
// during [start, start+duration).
func RenderASS(cues []types.TranscriptCue, f Frame) (string, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return "", errors.New("ass: frame size must be > 0")
	}
	var b strings.Builder
	b.WriteString(assHeader(f))
	b.WriteString("\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, c := range cues {
		text := sanitizeASS(c.Text)
		if text == "" {
			continue
		}
		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(dur(c.Start)))
		b.WriteString(",")
		b.WriteString(assTime(dur(c.End())))
		b.WriteString(",Caption,,0,0,0,,")
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func assHeader(f Frame) string {
	fontSize := max(24, f.Height/22)
	outline := max(2, fontSize/8)
	margin := max(20, f.Width/12)
	return strings.TrimSpace(fmt.Sprintf(`
[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
WrapStyle: 0
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Caption, Inter, %d, &H00FFFFFF, &H00FFFFFF, &H96000000, &H96000000, 1,0,0,0,100,100,0,0,3,%d,0,5, %d,%d,0,1
`, f.Width, f.Height, fontSize, outline, margin, margin))
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

// dur rounds to the nearest millisecond so 2.9999999 does not render as 2.99.
func dur(sec float64) time.Duration {
	return time.Duration(sec*1000+0.5) * time.Millisecond
}
