package tracking

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/jwebster45206/quantum-theater/pkg/vision"
)

// Stability is the debounced presence classification of a marker.
type Stability string

const (
	Absent       Stability = "absent"
	Appearing    Stability = "appearing"
	Present      Stability = "present"
	Disappearing Stability = "disappearing"
)

// SmoothingMode selects how raw poses are combined into the reported pose.
type SmoothingMode string

const (
	SmoothingEMA    SmoothingMode = "ema"
	SmoothingMedian SmoothingMode = "median"
)

// Config holds the debounce and smoothing parameters.
type Config struct {
	PresentFrames   int           // consecutive sightings before Present
	AbsentFrames    int           // consecutive misses before Absent
	GraceFrames     int           // frames an Absent track is kept before it is dropped
	HistorySize     int           // raw poses retained per marker
	Smoothing       SmoothingMode // ema or median
	Alpha           float64       // ema weight of the newest sample
	ConfidenceFloor float64       // observations below this count as missing
}

func DefaultConfig() Config {
	return Config{
		PresentFrames:   5,
		AbsentFrames:    10,
		GraceFrames:     90,
		HistorySize:     8,
		Smoothing:       SmoothingEMA,
		Alpha:           0.5,
		ConfidenceFloor: 0.5,
	}
}

func (c Config) Validate() error {
	if c.PresentFrames < 1 {
		return fmt.Errorf("present frames must be at least 1, got %d", c.PresentFrames)
	}
	if c.AbsentFrames < 1 {
		return fmt.Errorf("absent frames must be at least 1, got %d", c.AbsentFrames)
	}
	if c.GraceFrames < 0 {
		return fmt.Errorf("grace frames must not be negative, got %d", c.GraceFrames)
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("history size must be at least 1, got %d", c.HistorySize)
	}
	if c.Smoothing != SmoothingEMA && c.Smoothing != SmoothingMedian {
		return fmt.Errorf("unknown smoothing mode %q", c.Smoothing)
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("smoothing alpha must be in (0, 1], got %v", c.Alpha)
	}
	if c.ConfidenceFloor < 0 || c.ConfidenceFloor > 1 {
		return fmt.Errorf("confidence floor must be in [0, 1], got %v", c.ConfidenceFloor)
	}
	return nil
}

// Track is a read-only copy of one marker's filtered state. Pose is the
// smoothed pose.
type Track struct {
	ID         int               `json:"id"`
	State      Stability         `json:"state"`
	Pose       vision.MarkerPose `json:"pose"`
	Confidence float64           `json:"confidence"`
	LastSeen   int64             `json:"last_seen"`
	Samples    int               `json:"samples"`
}

// OnBoard reports whether the marker counts as physically present. A marker
// that is Disappearing has not yet missed enough frames to be called gone.
func (t Track) OnBoard() bool {
	return t.State == Present || t.State == Disappearing
}

type markerTrack struct {
	history      *Ring[vision.MarkerPose]
	state        Stability
	hits         int
	misses       int
	absentFrames int
	smoothed     vision.MarkerPose
	confidence   float64
	lastSeen     int64

	// scratch for median smoothing, sized to the history
	xs, ys []float64
}

// Filter debounces and smooths marker poses across frames. It is owned by
// the sensing loop and is not safe for concurrent use.
type Filter struct {
	cfg    Config
	tracks map[int]*markerTrack
}

func NewFilter(cfg Config) *Filter {
	return &Filter{cfg: cfg, tracks: make(map[int]*markerTrack)}
}

// Ingest advances every track by one frame and returns copies of all tracks
// sorted by marker id.
func (f *Filter) Ingest(frameIndex int64, poses []vision.MarkerPose) []Track {
	seen := make(map[int]vision.MarkerPose, len(poses))
	for _, p := range poses {
		if p.Confidence < f.cfg.ConfidenceFloor {
			continue
		}
		seen[p.ID] = p
	}

	for id, t := range f.tracks {
		if p, ok := seen[id]; ok {
			f.observe(t, p, frameIndex)
			delete(seen, id)
			continue
		}
		f.miss(t)
		if t.state == Absent && t.absentFrames > f.cfg.GraceFrames {
			delete(f.tracks, id)
		}
	}

	for id, p := range seen {
		t := &markerTrack{
			history: NewRing[vision.MarkerPose](f.cfg.HistorySize),
			state:   Absent,
			xs:      make([]float64, 0, f.cfg.HistorySize),
			ys:      make([]float64, 0, f.cfg.HistorySize),
		}
		f.tracks[id] = t
		f.observe(t, p, frameIndex)
	}

	return f.Tracks()
}

// Tracks returns copies of all live tracks sorted by marker id.
func (f *Filter) Tracks() []Track {
	out := make([]Track, 0, len(f.tracks))
	for id, t := range f.tracks {
		out = append(out, Track{
			ID:         id,
			State:      t.state,
			Pose:       t.smoothed,
			Confidence: t.confidence,
			LastSeen:   t.lastSeen,
			Samples:    t.history.Len(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *Filter) observe(t *markerTrack, p vision.MarkerPose, frameIndex int64) {
	t.misses = 0
	t.absentFrames = 0
	t.hits++
	t.lastSeen = frameIndex

	if t.state == Absent {
		// A returning marker may have been moved while hidden; start over.
		t.history.Reset()
		t.hits = 1
		t.smoothed = p
		t.confidence = p.Confidence
		t.history.Push(p)
		t.state = Appearing
	} else {
		t.history.Push(p)
		f.smooth(t, p)
	}
	t.smoothed.FrameIndex = frameIndex

	switch t.state {
	case Appearing:
		if t.hits >= f.cfg.PresentFrames {
			t.state = Present
		}
	case Disappearing:
		t.state = Present
	}
}

func (f *Filter) miss(t *markerTrack) {
	t.hits = 0
	switch t.state {
	case Appearing:
		t.state = Absent
		t.absentFrames = 0
	case Present, Disappearing:
		t.misses++
		t.state = Disappearing
		if t.misses >= f.cfg.AbsentFrames {
			t.state = Absent
			t.absentFrames = 0
		}
	case Absent:
		t.absentFrames++
	}
}

func (f *Filter) smooth(t *markerTrack, p vision.MarkerPose) {
	a := f.cfg.Alpha
	t.confidence += a * (p.Confidence - t.confidence)

	switch f.cfg.Smoothing {
	case SmoothingMedian:
		t.xs, t.ys = t.xs[:0], t.ys[:0]
		var sin, cos float64
		for i := range t.history.Len() {
			h := t.history.At(i)
			t.xs = append(t.xs, h.Position.X)
			t.ys = append(t.ys, h.Position.Y)
			sin += math.Sin(h.Rotation)
			cos += math.Cos(h.Rotation)
		}
		t.smoothed.Position = vision.Point{X: median(t.xs), Y: median(t.ys)}
		t.smoothed.Rotation = math.Atan2(sin, cos)
	default:
		t.smoothed.Position.X += a * (p.Position.X - t.smoothed.Position.X)
		t.smoothed.Position.Y += a * (p.Position.Y - t.smoothed.Position.Y)
		t.smoothed.Rotation = wrapAngle(t.smoothed.Rotation + a*wrapAngle(p.Rotation-t.smoothed.Rotation))
	}
	t.smoothed.ID = p.ID
	t.smoothed.Confidence = t.confidence
}

// median sorts v in place.
func median(v []float64) float64 {
	slices.Sort(v)
	n := len(v)
	if n%2 == 1 {
		return v[n/2]
	}
	return (v[n/2-1] + v[n/2]) / 2
}

// wrapAngle normalises an angle to (-pi, pi].
func wrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
