// internal/triggers/triggers.go
// Package triggers holds the closed vocabulary of session lifecycle event
// types. It has no dependencies on the rest of the service, so the event
// pipeline, the webhook registry, and the request validator can all share it.
package triggers

// Event type constants. Webhook records may carry unknown trigger strings
// (written by older builds); those are ignored at match time rather than
// rejected.
const (
	EventTypeSessionStarted   = "session.started"
	EventTypeSessionCompleted = "session.completed"
	EventTypeSessionAbandoned = "session.abandoned"
	EventTypeFieldExtracted   = "field.extracted"
)

var ValidEventTypes = []string{
	EventTypeSessionStarted,
	EventTypeSessionCompleted,
	EventTypeSessionAbandoned,
	EventTypeFieldExtracted,
}

// IsValidEventType reports whether eventType is part of the closed vocabulary.
func IsValidEventType(eventType string) bool {
	for _, t := range ValidEventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}
