package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSystem(t *testing.T) {
	tests := []struct {
		name       string
		messages   []ChatMessage
		wantSystem string
		wantRest   []ChatMessage
	}{
		{
			name:       "no system messages",
			messages:   []ChatMessage{User("hello")},
			wantSystem: "",
			wantRest:   []ChatMessage{User("hello")},
		},
		{
			name:       "multiple system messages are joined",
			messages:   []ChatMessage{System("You narrate."), User("A piece moved."), System("Be brief.")},
			wantSystem: "You narrate.\n\nBe brief.",
			wantRest:   []ChatMessage{User("A piece moved.")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			system, rest := SplitSystem(tt.messages)
			assert.Equal(t, tt.wantSystem, system)
			assert.Equal(t, tt.wantRest, rest)
		})
	}
}
