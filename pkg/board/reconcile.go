package board

import (
	"iter"
	"slices"
)

// Reconcile diffs two snapshots into board events.
//
// Per zone, empty to occupied is a placement, occupied to empty a removal,
// and a change of occupant is a removal followed by a placement. A marker
// removed from exactly one zone and placed in exactly one other zone in the
// same pass is reported as a single move instead; a swap of two markers
// therefore yields two moves. Events are ordered removed, moved, placed, and
// by ascending zone within each kind (source zone for moves).
func Reconcile(prev, curr Snapshot) []BoardEvent {
	return slices.Collect(Events(prev, curr))
}

// Events is the lazy form of Reconcile. The diff is computed when iteration
// starts.
func Events(prev, curr Snapshot) iter.Seq[BoardEvent] {
	return func(yield func(BoardEvent) bool) {
		for _, e := range diff(prev, curr) {
			if !yield(e) {
				return
			}
		}
	}
}

func diff(prev, curr Snapshot) []BoardEvent {
	zoneSet := make(map[string]struct{}, len(prev.occupants)+len(curr.occupants))
	for z := range prev.occupants {
		zoneSet[z] = struct{}{}
	}
	for z := range curr.occupants {
		zoneSet[z] = struct{}{}
	}
	zones := make([]string, 0, len(zoneSet))
	for z := range zoneSet {
		zones = append(zones, z)
	}
	slices.SortFunc(zones, ZoneCompare)

	var removed, placed []BoardEvent
	removedBy := make(map[int][]int)
	placedBy := make(map[int][]int)
	for _, z := range zones {
		a, hadA := prev.occupants[z]
		b, hasB := curr.occupants[z]
		if hadA && hasB && a == b {
			continue
		}
		if hadA {
			removedBy[a] = append(removedBy[a], len(removed))
			removed = append(removed, Removed(z, a))
		}
		if hasB {
			placedBy[b] = append(placedBy[b], len(placed))
			placed = append(placed, Placed(z, b))
		}
	}

	var moved []BoardEvent
	dropRemoved := make(map[int]bool)
	dropPlaced := make(map[int]bool)
	for id, rs := range removedBy {
		ps := placedBy[id]
		if len(rs) != 1 || len(ps) != 1 {
			continue
		}
		moved = append(moved, Moved(id, removed[rs[0]].Zone, placed[ps[0]].Zone))
		dropRemoved[rs[0]] = true
		dropPlaced[ps[0]] = true
	}

	out := make([]BoardEvent, 0, len(removed)+len(placed))
	for i, e := range removed {
		if !dropRemoved[i] {
			out = append(out, e)
		}
	}
	for i, e := range placed {
		if !dropPlaced[i] {
			out = append(out, e)
		}
	}
	out = append(out, moved...)

	slices.SortStableFunc(out, func(x, y BoardEvent) int {
		if d := x.Kind.priority() - y.Kind.priority(); d != 0 {
			return d
		}
		if c := ZoneCompare(x.SortZone(), y.SortZone()); c != 0 {
			return c
		}
		return x.MarkerID - y.MarkerID
	})
	return out
}
