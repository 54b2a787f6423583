package board

import (
	"math"
	"strconv"

	"github.com/jwebster45206/quantum-theater/pkg/vision"
)

// Zone is a named region of the play surface in board coordinates. A zone is
// either a polygon or a circle (center + radius), never both.
type Zone struct {
	ID      string         `json:"id"`
	Polygon []vision.Point `json:"polygon,omitempty"`
	Center  *vision.Point  `json:"center,omitempty"`
	Radius  float64        `json:"radius,omitempty"`
}

// Distance returns 0 when p lies inside the zone, otherwise the distance from
// p to the zone boundary.
func (z Zone) Distance(p vision.Point) float64 {
	if z.Center != nil {
		return math.Max(0, math.Hypot(p.X-z.Center.X, p.Y-z.Center.Y)-z.Radius)
	}
	if z.contains(p) {
		return 0
	}
	best := math.Inf(1)
	n := len(z.Polygon)
	for i := 0; i < n; i++ {
		best = math.Min(best, segmentDistance(p, z.Polygon[i], z.Polygon[(i+1)%n]))
	}
	return best
}

// Centroid is the vertex mean for polygons and the center for circles.
func (z Zone) Centroid() vision.Point {
	if z.Center != nil {
		return *z.Center
	}
	var c vision.Point
	for _, v := range z.Polygon {
		c.X += v.X
		c.Y += v.Y
	}
	if n := float64(len(z.Polygon)); n > 0 {
		c.X /= n
		c.Y /= n
	}
	return c
}

// contains is an even-odd ray cast.
func (z Zone) contains(p vision.Point) bool {
	in := false
	n := len(z.Polygon)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := z.Polygon[i], z.Polygon[j]
		if (a.Y > p.Y) != (b.Y > p.Y) &&
			p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
			in = !in
		}
	}
	return in
}

func segmentDistance(p, a, b vision.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}

// ZoneLess orders zone ids. Numeric ids (as produced by grid calibration)
// compare by value so "2" sorts before "10"; numeric ids sort before
// non-numeric ones, which compare lexically.
func ZoneLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		if na != nb {
			return na < nb
		}
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

// ZoneCompare is ZoneLess as a three-way comparison for slices.SortFunc.
func ZoneCompare(a, b string) int {
	switch {
	case ZoneLess(a, b):
		return -1
	case ZoneLess(b, a):
		return 1
	default:
		return 0
	}
}
