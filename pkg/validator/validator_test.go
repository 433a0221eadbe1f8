package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeRule(t *testing.T) {
	type payload struct {
		EventType string `validate:"required,eventtype"`
	}

	v := GetValidator()

	tests := []struct {
		name      string
		eventType string
		valid     bool
	}{
		{"Session started", "session.started", true},
		{"Field extracted", "field.extracted", true},
		{"Unknown type", "session.paused", false},
		{"Empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(payload{EventType: tt.eventType})
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestGetValidatorReturnsSingleton(t *testing.T) {
	require.Same(t, GetValidator(), GetValidator())
}
