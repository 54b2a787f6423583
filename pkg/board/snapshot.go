package board

import (
	"encoding/json"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/jwebster45206/quantum-theater/pkg/tracking"
)

// Conflict records two markers that resolved to the same zone. The loser is
// left off the board for that snapshot.
type Conflict struct {
	Zone   string `json:"zone"`
	Winner int    `json:"winner"`
	Loser  int    `json:"loser"`
}

// Snapshot is an immutable zone-to-marker mapping for one point in time.
// At most one marker occupies a zone.
type Snapshot struct {
	occupants  map[string]int
	conflicts  []Conflict
	frameIndex int64
	timestamp  time.Time
}

// NewSnapshot builds a snapshot from a zone-to-marker map. The map is copied.
func NewSnapshot(occupants map[string]int, frameIndex int64, at time.Time) Snapshot {
	cp := make(map[string]int, len(occupants))
	for z, id := range occupants {
		cp[z] = id
	}
	return Snapshot{occupants: cp, frameIndex: frameIndex, timestamp: at}
}

// Occupant returns the marker in zone, if any.
func (s Snapshot) Occupant(zone string) (int, bool) {
	id, ok := s.occupants[zone]
	return id, ok
}

// Zones returns the occupied zones in ZoneLess order.
func (s Snapshot) Zones() []string {
	zones := make([]string, 0, len(s.occupants))
	for z := range s.occupants {
		zones = append(zones, z)
	}
	slices.SortFunc(zones, ZoneCompare)
	return zones
}

func (s Snapshot) Len() int { return len(s.occupants) }
func (s Snapshot) FrameIndex() int64 { return s.frameIndex }
func (s Snapshot) Timestamp() time.Time { return s.timestamp }
func (s Snapshot) Conflicts() []Conflict { return slices.Clone(s.conflicts) }
func (s Snapshot) Occupants() map[string]int {
	cp := make(map[string]int, len(s.occupants))
	for z, id := range s.occupants {
		cp[z] = id
	}
	return cp
}

type snapshotJSON struct {
	Zones     map[string]int `json:"zones"`
	Conflicts []Conflict     `json:"conflicts,omitempty"`
	Frame     int64          `json:"frame"`
	Timestamp time.Time      `json:"timestamp"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	zones := s.occupants
	if zones == nil {
		zones = map[string]int{}
	}
	return json.Marshal(snapshotJSON{
		Zones:     zones,
		Conflicts: s.conflicts,
		Frame:     s.frameIndex,
		Timestamp: s.timestamp,
	})
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = NewSnapshot(raw.Zones, raw.Frame, raw.Timestamp)
	s.conflicts = raw.Conflicts
	return nil
}

// Snapshotter quantizes filtered tracks into zones.
type Snapshotter struct {
	zones     []Zone
	tolerance float64
	log       *slog.Logger
}

func NewSnapshotter(zones []Zone, tolerance float64, log *slog.Logger) *Snapshotter {
	if log == nil {
		log = slog.Default()
	}
	return &Snapshotter{zones: zones, tolerance: tolerance, log: log}
}

type claim struct {
	id         int
	confidence float64
}

// Snapshot places every on-board track in its nearest zone within tolerance.
// Tracks outside every zone are off-board. When two tracks claim one zone the
// higher confidence wins, ties going to the lower marker id.
func (s *Snapshotter) Snapshot(tracks []tracking.Track, frameIndex int64, at time.Time) Snapshot {
	claims := make(map[string][]claim)
	for _, t := range tracks {
		if !t.OnBoard() {
			continue
		}
		zone, ok := s.nearest(t)
		if !ok {
			continue
		}
		claims[zone] = append(claims[zone], claim{id: t.ID, confidence: t.Confidence})
	}

	snap := Snapshot{
		occupants:  make(map[string]int, len(claims)),
		frameIndex: frameIndex,
		timestamp:  at,
	}
	zones := make([]string, 0, len(claims))
	for z := range claims {
		zones = append(zones, z)
	}
	slices.SortFunc(zones, ZoneCompare)

	for _, z := range zones {
		cs := claims[z]
		slices.SortFunc(cs, func(a, b claim) int {
			switch {
			case a.confidence > b.confidence:
				return -1
			case a.confidence < b.confidence:
				return 1
			default:
				return a.id - b.id
			}
		})
		snap.occupants[z] = cs[0].id
		for _, lost := range cs[1:] {
			snap.conflicts = append(snap.conflicts, Conflict{Zone: z, Winner: cs[0].id, Loser: lost.id})
			s.log.Warn("zone conflict",
				"zone", z,
				"marker_id", cs[0].id,
				"loser_id", lost.id,
				"frame", frameIndex)
		}
	}
	return snap
}

func (s *Snapshotter) nearest(t tracking.Track) (string, bool) {
	p := t.Pose.Position
	var (
		best       *Zone
		bestDist   = math.Inf(1)
		bestCenter = math.Inf(1)
	)
	for i := range s.zones {
		z := &s.zones[i]
		d := z.Distance(p)
		if d > s.tolerance {
			continue
		}
		c := z.Centroid()
		cd := math.Hypot(p.X-c.X, p.Y-c.Y)
		if best == nil || d < bestDist ||
			(d == bestDist && (cd < bestCenter || (cd == bestCenter && ZoneLess(z.ID, best.ID)))) {
			best, bestDist, bestCenter = z, d, cd
		}
	}
	if best == nil {
		return "", false
	}
	return best.ID, true
}
