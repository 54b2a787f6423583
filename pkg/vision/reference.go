package vision

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultReferenceMemory is how long a reference marker's last position is
// trusted after it leaves view.
const DefaultReferenceMemory = 90 * time.Second

type rememberedMarker struct {
	center Point
	seen   time.Time
}

// ReferenceCalibrator derives the board transform from four fixed markers
// placed at the corners of the play surface. Corner assignment is inferred
// from where the markers sit relative to each other, so any four ids work.
type ReferenceCalibrator struct {
	ids    []int
	width  float64
	height float64
	memory time.Duration

	mu     sync.Mutex
	recent map[int]rememberedMarker
}

func NewReferenceCalibrator(ids []int, width, height float64, memory time.Duration) (*ReferenceCalibrator, error) {
	if len(ids) != 4 {
		return nil, fmt.Errorf("reference calibration needs 4 marker ids, got %d", len(ids))
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("reference calibration needs a positive board size")
	}
	if memory <= 0 {
		memory = DefaultReferenceMemory
	}
	return &ReferenceCalibrator{
		ids:    append([]int(nil), ids...),
		width:  width,
		height: height,
		memory: memory,
		recent: make(map[int]rememberedMarker, 4),
	}, nil
}

// IDs returns the reference marker ids.
func (r *ReferenceCalibrator) IDs() []int {
	return append([]int(nil), r.ids...)
}

// Transform updates marker memory from this frame's observations and solves
// the transform from the remembered corner positions.
func (r *ReferenceCalibrator) Transform(obs []MarkerObservation, at time.Time) (Homography, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range obs {
		if r.isReference(o.ID) {
			r.recent[o.ID] = rememberedMarker{center: o.Center(), seen: at}
		}
	}
	for id, m := range r.recent {
		if at.Sub(m.seen) > r.memory {
			delete(r.recent, id)
		}
	}
	if len(r.recent) < 4 {
		return Homography{}, fmt.Errorf("%w: %d of 4 reference markers known", ErrNoTransform, len(r.recent))
	}

	src, ok := r.corners()
	if !ok {
		return Homography{}, fmt.Errorf("%w: reference markers do not form a quad", ErrNoTransform)
	}
	dst := [4]Point{
		{X: 0, Y: 0},
		{X: r.width, Y: 0},
		{X: 0, Y: r.height},
		{X: r.width, Y: r.height},
	}
	h, err := HomographyFromPoints(src, dst)
	if err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrNoTransform, err)
	}
	return h, nil
}

func (r *ReferenceCalibrator) isReference(id int) bool {
	for _, ref := range r.ids {
		if ref == id {
			return true
		}
	}
	return false
}

// corners orders the remembered centers as top-left, top-right, bottom-left,
// bottom-right.
func (r *ReferenceCalibrator) corners() ([4]Point, bool) {
	var meanY float64
	for _, m := range r.recent {
		meanY += m.center.Y
	}
	meanY /= float64(len(r.recent))

	var top, bottom []Point
	for _, id := range r.ids {
		m := r.recent[id]
		if m.center.Y < meanY {
			top = append(top, m.center)
		} else {
			bottom = append(bottom, m.center)
		}
	}
	if len(top) != 2 || len(bottom) != 2 {
		return [4]Point{}, false
	}
	sort.Slice(top, func(i, j int) bool { return top[i].X < top[j].X })
	sort.Slice(bottom, func(i, j int) bool { return bottom[i].X < bottom[j].X })
	return [4]Point{top[0], top[1], bottom[0], bottom[1]}, true
}
