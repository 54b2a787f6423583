package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quantum-theater/pkg/board"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		args []string
		want board.BoardEvent
	}{
		{[]string{"placed", "altar", "79"}, board.Placed("altar", 79)},
		{[]string{"removed", "3", "62"}, board.Removed("3", 62)},
		{[]string{"moved", "79", "altar", "pedestal"}, board.Moved(79, "altar", "pedestal")},
	}
	for _, tt := range tests {
		got, err := parseEvent(tt.args)
		require.NoError(t, err, tt.args)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseEvent_Invalid(t *testing.T) {
	for _, args := range [][]string{
		nil,
		{"teleported", "altar", "1"},
		{"placed", "altar"},
		{"placed", "altar", "seven"},
		{"moved", "7", "altar", "altar"},
		{"moved", "x", "altar", "pedestal"},
	} {
		_, err := parseEvent(args)
		assert.Error(t, err, args)
	}
}
