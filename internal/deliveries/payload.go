package deliveries

import (
	"encoding/json"
	"regexp"
	"time"

	"github.com/formhive/webhook-service/internal/webhooks"
)

// defaultEnvelope is the canonical payload sent when a webhook has no
// template configured, or when its template cannot produce valid JSON.
type defaultEnvelope struct {
	EventType string          `json:"eventType"`
	SessionID string          `json:"sessionId"`
	AgentID   string          `json:"agentId"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

var templateTokenRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// BuildPayload renders the outbound JSON body for one (webhook, event) pair.
// It is a pure function and never fails: template problems degrade to the
// default envelope, and substituted values are JSON-escaped so a resolvable
// template always yields syntactically valid JSON.
func BuildPayload(wh *webhooks.Webhook, event *EventInfo) []byte {
	if wh.PayloadTemplate == nil || *wh.PayloadTemplate == "" {
		return buildDefaultEnvelope(event)
	}

	rendered := templateTokenRe.ReplaceAllStringFunc(*wh.PayloadTemplate, func(match string) string {
		token := templateTokenRe.FindStringSubmatch(match)[1]
		return resolveToken(token, event)
	})

	// A template can be structurally broken regardless of what we substitute
	// into it. The safe information is the default envelope.
	if !json.Valid([]byte(rendered)) {
		return buildDefaultEnvelope(event)
	}

	return []byte(rendered)
}

func buildDefaultEnvelope(event *EventInfo) []byte {
	data := event.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	body, err := json.Marshal(defaultEnvelope{
		EventType: event.EventType,
		SessionID: event.SessionID.String(),
		AgentID:   event.AgentID.String(),
		Timestamp: event.CreatedAt.UTC().Format(time.RFC3339),
		Data:      data,
	})
	if err != nil {
		// Data is json.RawMessage straight out of the database; this cannot
		// fail in practice, but a payload must always exist.
		body, _ = json.Marshal(defaultEnvelope{
			EventType: event.EventType,
			SessionID: event.SessionID.String(),
			AgentID:   event.AgentID.String(),
			Timestamp: event.CreatedAt.UTC().Format(time.RFC3339),
			Data:      json.RawMessage("{}"),
		})
	}
	return body
}

// resolveToken maps a template token to its replacement text. String values
// are inserted as escaped JSON string content (without surrounding quotes,
// the template author supplies those); structured values are inserted as raw
// JSON. Unknown tokens render as empty string.
func resolveToken(token string, event *EventInfo) string {
	switch token {
	case "eventType":
		return escapeJSONString(event.EventType)
	case "sessionId":
		return escapeJSONString(event.SessionID.String())
	case "agentId":
		return escapeJSONString(event.AgentID.String())
	case "timestamp":
		return escapeJSONString(event.CreatedAt.UTC().Format(time.RFC3339))
	case "data":
		if len(event.Data) == 0 {
			return "{}"
		}
		return string(event.Data)
	}

	if len(token) > 5 && token[:5] == "data." {
		return resolveDataField(token[5:], event.Data)
	}

	return ""
}

func resolveDataField(field string, data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return ""
	}

	raw, ok := fields[field]
	if !ok {
		return ""
	}

	// Strings are unwrapped and escaped; everything else is already JSON.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return escapeJSONString(s)
	}
	return string(raw)
}

func escapeJSONString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	// strip the surrounding quotes added by Marshal
	return string(b[1 : len(b)-1])
}
