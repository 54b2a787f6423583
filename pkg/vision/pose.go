package vision

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// ErrNoTransform is returned when no pixel-to-board transform can be built
// for a frame, typically because reference markers are out of view.
var ErrNoTransform = errors.New("no board transform available")

// Homography is a row-major 3x3 projective transform from pixel space to
// board space.
type Homography [9]float64

// Identity leaves pixel coordinates untouched.
var Identity = Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}

// Apply maps a pixel-space point into board space.
func (h Homography) Apply(p Point) Point {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if w == 0 {
		return Point{X: math.Inf(1), Y: math.Inf(1)}
	}
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}
}

// HomographyFromPoints solves the projective transform that maps each src
// point onto the matching dst point.
func HomographyFromPoints(src, dst [4]Point) (Homography, error) {
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})
		b.SetVec(2*i, u)
		b.SetVec(2*i+1, v)
	}

	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		return Homography{}, fmt.Errorf("solve homography: %w", err)
	}
	var out Homography
	for i := 0; i < 8; i++ {
		out[i] = h.AtVec(i)
	}
	out[8] = 1
	for _, v := range out {
		if !finite(v) {
			return Homography{}, fmt.Errorf("solve homography: degenerate points")
		}
	}
	return out, nil
}

// MarkerPose is a board-relative pose derived from one observation.
type MarkerPose struct {
	ID         int     `json:"id"`
	Position   Point   `json:"position"`
	Rotation   float64 `json:"rotation"` // radians, (-pi, pi]
	Confidence float64 `json:"confidence"`
	FrameIndex int64   `json:"frame_index"`
}

// TransformSource yields the transform to use for a frame.
type TransformSource interface {
	Transform(obs []MarkerObservation, at time.Time) (Homography, error)
}

// FixedTransform always returns the same calibrated homography.
type FixedTransform struct {
	H Homography
}

func (f FixedTransform) Transform([]MarkerObservation, time.Time) (Homography, error) {
	return f.H, nil
}

// PoseEstimator converts observations into board-space poses.
type PoseEstimator struct {
	source    TransformSource
	reference map[int]bool
}

// NewPoseEstimator builds an estimator. Observations whose id is listed in
// referenceIDs are consumed by the transform source and never become poses.
func NewPoseEstimator(source TransformSource, referenceIDs []int) *PoseEstimator {
	ref := make(map[int]bool, len(referenceIDs))
	for _, id := range referenceIDs {
		ref[id] = true
	}
	return &PoseEstimator{source: source, reference: ref}
}

// Estimate returns one pose per non-reference observation, in input order.
func (e *PoseEstimator) Estimate(obs []MarkerObservation, at time.Time) ([]MarkerPose, error) {
	h, err := e.source.Transform(obs, at)
	if err != nil {
		return nil, err
	}

	poses := make([]MarkerPose, 0, len(obs))
	for _, o := range obs {
		if e.reference[o.ID] {
			continue
		}
		pos := h.Apply(o.Center())
		if !finite(pos.X) || !finite(pos.Y) {
			continue
		}
		// Heading is the top edge of the marker (corner 0 to corner 1) in
		// board space.
		p0 := h.Apply(o.Corners[0])
		p1 := h.Apply(o.Corners[1])
		poses = append(poses, MarkerPose{
			ID:         o.ID,
			Position:   pos,
			Rotation:   math.Atan2(p1.Y-p0.Y, p1.X-p0.X),
			Confidence: o.Confidence,
			FrameIndex: o.FrameIndex,
		})
	}
	return poses, nil
}
