package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeEntry_RejectsInvalidEvents(t *testing.T) {
	tests := map[string]string{
		"not json":       `{{`,
		"missing zone":   `{"event":{"kind":"placed","marker_id":7}}`,
		"unknown kind":   `{"event":{"kind":"teleported","marker_id":7,"zone":"altar"}}`,
		"same zone move": `{"event":{"kind":"moved","marker_id":7,"from_zone":"altar","to_zone":"altar"}}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEntry(raw)
			assert.Error(t, err)
		})
	}
}
