// Package sensing runs the camera side of the theater: frames in, board
// events out.
package sensing

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jwebster45206/quantum-theater/pkg/board"
	"github.com/jwebster45206/quantum-theater/pkg/tracking"
	"github.com/jwebster45206/quantum-theater/pkg/vision"
)

// Options tune the pipeline beyond what the calibration file says.
type Options struct {
	Tracking        tracking.Config
	Tolerance       float64       // overrides the calibration tolerance when positive
	ReferenceMemory time.Duration // how long a hidden reference marker is remembered
	MinMarkerArea   float64
}

// Pipeline turns one frame into one board snapshot. It keeps the temporal
// filter state between frames and must only be driven from one goroutine.
type Pipeline struct {
	observer    *vision.Observer
	estimator   *vision.PoseEstimator
	filter      *tracking.Filter
	snapshotter *board.Snapshotter
	zones       []board.Zone
}

// NewPipeline wires observer, estimator, filter and snapshotter for a
// calibration.
func NewPipeline(cal board.Calibration, opts Options, logger *slog.Logger) (*Pipeline, error) {
	if err := opts.Tracking.Validate(); err != nil {
		return nil, fmt.Errorf("tracking config: %w", err)
	}
	source, refIDs, err := cal.TransformSource(opts.ReferenceMemory)
	if err != nil {
		return nil, err
	}
	tolerance := cal.ZoneTolerance()
	if opts.Tolerance > 0 {
		tolerance = opts.Tolerance
	}
	zones := cal.AllZones()
	return &Pipeline{
		observer:    vision.NewObserver(opts.MinMarkerArea),
		estimator:   vision.NewPoseEstimator(source, refIDs),
		filter:      tracking.NewFilter(opts.Tracking),
		snapshotter: board.NewSnapshotter(zones, tolerance, logger),
		zones:       zones,
	}, nil
}

// Zones returns the zones snapshots are mapped onto.
func (p *Pipeline) Zones() []board.Zone {
	return p.zones
}

// Process runs one frame through the pipeline. Errors wrap
// vision.ErrUnreadableFrame or vision.ErrNoTransform; in both cases the
// filter has not advanced.
func (p *Pipeline) Process(frame vision.Frame) (board.Snapshot, []tracking.Track, error) {
	obs, err := p.observer.Observe(frame)
	if err != nil {
		return board.Snapshot{}, nil, err
	}
	poses, err := p.estimator.Estimate(obs, frame.Timestamp)
	if err != nil {
		return board.Snapshot{}, nil, fmt.Errorf("frame %d: %w", frame.Index, err)
	}
	tracks := p.filter.Ingest(frame.Index, poses)
	return p.snapshotter.Snapshot(tracks, frame.Index, frame.Timestamp), tracks, nil
}
