package board

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jwebster45206/quantum-theater/pkg/vision"
)

// ErrInvalidCalibration is returned for calibration documents that cannot be
// used to map markers onto zones.
var ErrInvalidCalibration = errors.New("invalid calibration")

// DefaultTolerance is the distance, in board units, a marker may sit outside
// its nearest zone and still count as inside it.
const DefaultTolerance = 25.0

// Grid expands into cols*rows rectangular zones covering the board, numbered
// "1".."cols*rows" row-major from the top left.
type Grid struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// Size is the board extent in board units.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Calibration describes how pixels map onto the board and which zones exist.
type Calibration struct {
	Zones            []Zone             `json:"zones,omitempty"`
	Grid             *Grid              `json:"grid,omitempty"`
	Homography       *vision.Homography `json:"homography,omitempty"`
	ReferenceMarkers []int              `json:"reference_markers,omitempty"`
	Board            *Size              `json:"board,omitempty"`
	Tolerance        float64            `json:"tolerance,omitempty"`
}

// ParseCalibration decodes and validates a calibration document. Unknown
// fields are rejected so typos surface at startup.
func ParseCalibration(data []byte) (Calibration, error) {
	var c Calibration
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Calibration{}, fmt.Errorf("%w: %v", ErrInvalidCalibration, err)
	}
	if err := c.Validate(); err != nil {
		return Calibration{}, err
	}
	return c, nil
}

// Validate checks the calibration and returns every problem found, joined.
func (c Calibration) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidCalibration}, args...)...))
	}

	if len(c.Zones) == 0 && c.Grid == nil {
		add("no zones or grid defined")
	}
	if c.Grid != nil {
		if c.Grid.Cols < 1 || c.Grid.Rows < 1 {
			add("grid needs positive cols and rows, got %dx%d", c.Grid.Cols, c.Grid.Rows)
		}
		if c.Board == nil {
			add("grid requires board size")
		}
	}
	if c.Board != nil && (c.Board.Width <= 0 || c.Board.Height <= 0) {
		add("board size must be positive")
	}
	if c.Homography != nil && len(c.ReferenceMarkers) > 0 {
		add("homography and reference_markers are mutually exclusive")
	}
	if len(c.ReferenceMarkers) > 0 {
		if len(c.ReferenceMarkers) != 4 {
			add("reference_markers needs exactly 4 ids, got %d", len(c.ReferenceMarkers))
		}
		if c.Board == nil {
			add("reference_markers requires board size")
		}
	}
	if c.Tolerance < 0 {
		add("tolerance must not be negative")
	}

	seen := make(map[string]bool)
	for i, z := range c.Zones {
		if z.ID == "" {
			add("zone %d has no id", i)
		} else if seen[z.ID] {
			add("duplicate zone id %q", z.ID)
		}
		seen[z.ID] = true
		switch {
		case z.Center != nil && len(z.Polygon) > 0:
			add("zone %q has both polygon and center", z.ID)
		case z.Center != nil:
			if z.Radius <= 0 {
				add("zone %q needs a positive radius", z.ID)
			}
		case len(z.Polygon) < 3:
			add("zone %q needs a polygon of at least 3 points or a center and radius", z.ID)
		}
	}
	if c.Grid != nil && c.Grid.Cols > 0 && c.Grid.Rows > 0 {
		for i := 1; i <= c.Grid.Cols*c.Grid.Rows; i++ {
			if seen[strconv.Itoa(i)] {
				add("zone %q collides with a grid zone", strconv.Itoa(i))
			}
		}
	}
	return errors.Join(errs...)
}

// AllZones returns the explicit zones followed by the expanded grid zones.
func (c Calibration) AllZones() []Zone {
	zones := append([]Zone(nil), c.Zones...)
	if c.Grid == nil || c.Board == nil {
		return zones
	}
	cw := c.Board.Width / float64(c.Grid.Cols)
	ch := c.Board.Height / float64(c.Grid.Rows)
	n := 1
	for r := 0; r < c.Grid.Rows; r++ {
		for col := 0; col < c.Grid.Cols; col++ {
			x0, y0 := float64(col)*cw, float64(r)*ch
			zones = append(zones, Zone{
				ID: strconv.Itoa(n),
				Polygon: []vision.Point{
					{X: x0, Y: y0}, {X: x0 + cw, Y: y0},
					{X: x0 + cw, Y: y0 + ch}, {X: x0, Y: y0 + ch},
				},
			})
			n++
		}
	}
	return zones
}

// ZoneTolerance returns the configured tolerance or DefaultTolerance.
func (c Calibration) ZoneTolerance() float64 {
	if c.Tolerance > 0 {
		return c.Tolerance
	}
	return DefaultTolerance
}

// TransformSource builds the pixel-to-board transform described by the
// calibration, and the marker ids it reserves for itself.
func (c Calibration) TransformSource(memory time.Duration) (vision.TransformSource, []int, error) {
	switch {
	case len(c.ReferenceMarkers) == 4 && c.Board != nil:
		rc, err := vision.NewReferenceCalibrator(c.ReferenceMarkers, c.Board.Width, c.Board.Height, memory)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidCalibration, err)
		}
		return rc, rc.IDs(), nil
	case c.Homography != nil:
		return vision.FixedTransform{H: *c.Homography}, nil, nil
	default:
		return vision.FixedTransform{H: vision.Identity}, nil, nil
	}
}
