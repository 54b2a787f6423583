package narrative

import (
	"fmt"
	"slices"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Act is a stage of the story.
type Act string

const (
	Intro         Act = "intro"
	Investigation Act = "investigation"
	Revelation    Act = "revelation"
	Resolution    Act = "resolution"
)

var acts = []Act{Intro, Investigation, Revelation, Resolution}

// Valid reports whether a is one of the known acts.
func (a Act) Valid() bool {
	return slices.Contains(acts, a)
}

// Terminal acts accept no further transitions.
func (a Act) Terminal() bool {
	return a == Resolution
}

// Title is the display form of the act, e.g. "Investigation".
func (a Act) Title() string {
	return cases.Title(language.English).String(string(a))
}

// NarrativeState is the single authoritative story state. Flags are kept
// sorted and unique. LastSeq is the sequence number of the last board event
// that changed the state.
type NarrativeState struct {
	Act     Act      `json:"act"`
	Flags   []string `json:"flags"`
	History []string `json:"history"`
	LastSeq int64    `json:"last_seq,omitempty"`
}

// DefaultState is the state of a story that has not started.
func DefaultState() NarrativeState {
	return NarrativeState{Act: Intro, Flags: []string{}, History: []string{}}
}

// Validate reports states that cannot be resumed.
func (s NarrativeState) Validate() error {
	if !s.Act.Valid() {
		return fmt.Errorf("unknown act %q", s.Act)
	}
	if s.LastSeq < 0 {
		return fmt.Errorf("negative last_seq %d", s.LastSeq)
	}
	return nil
}

// Normalize sorts and de-duplicates flags and replaces nil slices, so that
// states loaded from disk compare equal to states built in memory.
func (s NarrativeState) Normalize() NarrativeState {
	out := s.Clone()
	slices.Sort(out.Flags)
	out.Flags = slices.Compact(out.Flags)
	return out
}

// Clone returns a deep copy.
func (s NarrativeState) Clone() NarrativeState {
	out := s
	out.Flags = append(make([]string, 0, len(s.Flags)), s.Flags...)
	out.History = append(make([]string, 0, len(s.History)), s.History...)
	return out
}

// HasFlag reports whether flag is set.
func (s NarrativeState) HasFlag(flag string) bool {
	_, ok := slices.BinarySearch(s.Flags, flag)
	return ok
}

func (s *NarrativeState) setFlag(flag string) {
	i, ok := slices.BinarySearch(s.Flags, flag)
	if !ok {
		s.Flags = slices.Insert(s.Flags, i, flag)
	}
}

func (s *NarrativeState) clearFlag(flag string) {
	if i, ok := slices.BinarySearch(s.Flags, flag); ok {
		s.Flags = slices.Delete(s.Flags, i, i+1)
	}
}

// sameStory compares act and flags; history and sequence are bookkeeping.
func (s NarrativeState) sameStory(o NarrativeState) bool {
	return s.Act == o.Act && slices.Equal(s.Flags, o.Flags)
}
