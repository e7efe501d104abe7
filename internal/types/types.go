package types

// All times are seconds on the narration timeline unless noted.

type NarrationTrack struct {
	Path       string  `json:"path"`
	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sample_rate"`
}

type TranscriptCue struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

func (c TranscriptCue) End() float64 { return c.Start + c.Duration }

type SourceClipWindow struct {
	SourcePath  string  `json:"source_path"`
	StartOffset float64 `json:"start_offset"`
	Span        float64 `json:"span"`
}

// CropGeometry holds horizontal pixel bounds [Left, Right) of a full-height crop.
type CropGeometry struct {
	Left         int     `json:"left"`
	Right        int     `json:"right"`
	SourceWidth  int     `json:"source_width"`
	SourceHeight int     `json:"source_height"`
	TargetAspect float64 `json:"target_aspect"`
}

func (g CropGeometry) Width() int { return g.Right - g.Left }

type SourceInfo struct {
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
}

type AudioInfo struct {
	Duration   float64
	SampleRate int
}

// Word is a single ASR token with timings.
type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

type RenderResult struct {
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
	Bytes    int64   `json:"bytes"`
}

type Manifest struct {
	RunID     string        `json:"run_id"`
	Config    string        `json:"config"`
	StartedAt string        `json:"started_at"`
	Jobs      []ManifestJob `json:"jobs"`
}

type ManifestJob struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	State    string            `json:"state"`
	File     string            `json:"file,omitempty"`
	Stage    string            `json:"stage,omitempty"`
	Kind     string            `json:"kind,omitempty"`
	Error    string            `json:"error,omitempty"`
	Window   *SourceClipWindow `json:"window,omitempty"`
	Crop     *CropGeometry     `json:"crop,omitempty"`
	Cues     int               `json:"cues"`
	Duration float64           `json:"duration_sec"`
	Elapsed  float64           `json:"elapsed_sec"`
}
