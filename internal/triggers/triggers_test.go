package triggers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEventType(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		want      bool
	}{
		{"Session started", "session.started", true},
		{"Session completed", "session.completed", true},
		{"Session abandoned", "session.abandoned", true},
		{"Field extracted", "field.extracted", true},
		{"Unknown type", "session.paused", false},
		{"Empty string", "", false},
		{"Case sensitive", "Session.Started", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidEventType(tt.eventType))
		})
	}
}
