package board

import "fmt"

// EventKind tags a BoardEvent.
type EventKind string

const (
	PiecePlaced  EventKind = "placed"
	PieceRemoved EventKind = "removed"
	PieceMoved   EventKind = "moved"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case PiecePlaced, PieceRemoved, PieceMoved:
		return true
	}
	return false
}

// priority orders kinds within one reconciliation batch.
func (k EventKind) priority() int {
	switch k {
	case PieceRemoved:
		return 0
	case PieceMoved:
		return 1
	default:
		return 2
	}
}

// BoardEvent is one discrete change between two snapshots. Placed and
// removed events use Zone; moved events use FromZone and ToZone. Seq is
// assigned by the event queue and is zero until enqueued.
type BoardEvent struct {
	Seq      int64     `json:"seq,omitempty"`
	Kind     EventKind `json:"kind"`
	MarkerID int       `json:"marker_id"`
	Zone     string    `json:"zone,omitempty"`
	FromZone string    `json:"from_zone,omitempty"`
	ToZone   string    `json:"to_zone,omitempty"`
}

func Placed(zone string, markerID int) BoardEvent {
	return BoardEvent{Kind: PiecePlaced, MarkerID: markerID, Zone: zone}
}

func Removed(zone string, markerID int) BoardEvent {
	return BoardEvent{Kind: PieceRemoved, MarkerID: markerID, Zone: zone}
}

func Moved(markerID int, from, to string) BoardEvent {
	return BoardEvent{Kind: PieceMoved, MarkerID: markerID, FromZone: from, ToZone: to}
}

// SortZone is the zone used to order the event within its kind: the source
// zone for moves.
func (e BoardEvent) SortZone() string {
	if e.Kind == PieceMoved {
		return e.FromZone
	}
	return e.Zone
}

// TargetZone is the zone the event lands in: the destination for moves.
func (e BoardEvent) TargetZone() string {
	if e.Kind == PieceMoved {
		return e.ToZone
	}
	return e.Zone
}

// Validate checks that the fields required by the event kind are set.
func (e BoardEvent) Validate() error {
	switch e.Kind {
	case PiecePlaced, PieceRemoved:
		if e.Zone == "" {
			return fmt.Errorf("%s event needs a zone", e.Kind)
		}
	case PieceMoved:
		if e.FromZone == "" || e.ToZone == "" {
			return fmt.Errorf("moved event needs from_zone and to_zone")
		}
		if e.FromZone == e.ToZone {
			return fmt.Errorf("moved event has identical from_zone and to_zone %q", e.FromZone)
		}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if e.MarkerID < 0 {
		return fmt.Errorf("negative marker id %d", e.MarkerID)
	}
	return nil
}

// String is the one-line summary recorded in narrative history.
func (e BoardEvent) String() string {
	switch e.Kind {
	case PiecePlaced:
		return fmt.Sprintf("marker %d placed in %s", e.MarkerID, e.Zone)
	case PieceRemoved:
		return fmt.Sprintf("marker %d removed from %s", e.MarkerID, e.Zone)
	case PieceMoved:
		return fmt.Sprintf("marker %d moved from %s to %s", e.MarkerID, e.FromZone, e.ToZone)
	default:
		return fmt.Sprintf("marker %d: %s", e.MarkerID, e.Kind)
	}
}
