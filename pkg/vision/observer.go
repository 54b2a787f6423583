package vision

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrUnreadableFrame marks a frame that could not be read or decoded. The
// sensing loop skips such frames without touching tracker state.
var ErrUnreadableFrame = errors.New("unreadable frame")

// DefaultMinMarkerArea is the smallest quad area, in square pixels, accepted
// as a real marker. Smaller quads are detector noise.
const DefaultMinMarkerArea = 16.0

// Point is a 2D coordinate, either in pixel space or board space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Detection is one raw marker hit reported by the external detector.
type Detection struct {
	ID         int          `json:"id"`
	Corners    [][2]float64 `json:"corners"`
	Confidence float64      `json:"confidence"`
}

// Frame is a single camera frame as delivered by the detector feed.
type Frame struct {
	Index     int64       `json:"frame"`
	Timestamp time.Time   `json:"ts"`
	Markers   []Detection `json:"markers"`
	Error     string      `json:"error,omitempty"`
}

// MarkerObservation is a validated detection for one marker in one frame.
type MarkerObservation struct {
	ID         int      `json:"id"`
	Corners    [4]Point `json:"corners"`
	Confidence float64  `json:"confidence"`
	FrameIndex int64    `json:"frame_index"`
}

// Center returns the mean of the four corners.
func (o MarkerObservation) Center() Point {
	var c Point
	for _, p := range o.Corners {
		c.X += p.X
		c.Y += p.Y
	}
	c.X /= 4
	c.Y /= 4
	return c
}

// Observer turns frames into marker observations. It holds no state between
// frames.
type Observer struct {
	minArea float64
}

func NewObserver(minArea float64) *Observer {
	if minArea <= 0 {
		minArea = DefaultMinMarkerArea
	}
	return &Observer{minArea: minArea}
}

// Observe validates the detections in a frame. Malformed detections are
// dropped; a frame flagged by the detector yields ErrUnreadableFrame. When the
// same id is reported twice, the higher-confidence detection wins.
// Observations are returned sorted by marker id.
func (o *Observer) Observe(frame Frame) ([]MarkerObservation, error) {
	if frame.Error != "" {
		return nil, fmt.Errorf("%w: frame %d: %s", ErrUnreadableFrame, frame.Index, frame.Error)
	}

	byID := make(map[int]MarkerObservation, len(frame.Markers))
	for _, d := range frame.Markers {
		obs, ok := o.toObservation(d, frame.Index)
		if !ok {
			continue
		}
		if prev, seen := byID[obs.ID]; seen && prev.Confidence >= obs.Confidence {
			continue
		}
		byID[obs.ID] = obs
	}

	out := make([]MarkerObservation, 0, len(byID))
	for _, obs := range byID {
		out = append(out, obs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (o *Observer) toObservation(d Detection, frameIndex int64) (MarkerObservation, bool) {
	if d.ID < 0 || len(d.Corners) != 4 {
		return MarkerObservation{}, false
	}
	if math.IsNaN(d.Confidence) || d.Confidence < 0 {
		return MarkerObservation{}, false
	}

	obs := MarkerObservation{
		ID:         d.ID,
		Confidence: math.Min(d.Confidence, 1),
		FrameIndex: frameIndex,
	}
	for i, c := range d.Corners {
		if !finite(c[0]) || !finite(c[1]) {
			return MarkerObservation{}, false
		}
		obs.Corners[i] = Point{X: c[0], Y: c[1]}
	}
	if quadArea(obs.Corners) < o.minArea {
		return MarkerObservation{}, false
	}
	return obs, true
}

// quadArea is the shoelace area of the corner polygon.
func quadArea(c [4]Point) float64 {
	var sum float64
	for i := range c {
		j := (i + 1) % 4
		sum += c[i].X*c[j].Y - c[j].X*c[i].Y
	}
	return math.Abs(sum) / 2
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
