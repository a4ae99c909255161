// Package chat contains the core message model, the connection admission
// gate, and the inbound message pipeline. Durable state lives behind the
// history, ban and report stores; this package only orchestrates them.
package chat

// SystemUser is the display name attached to moderation-generated notices.
const SystemUser = "SISTEMA"

// Message is a single chat event. IP is present only in stored records and
// report snapshots; it is stripped before any fan-out (omitempty drops the
// field entirely from sanitized JSON).
type Message struct {
	ID        string `json:"id"`
	User      string `json:"user"`
	Text      string `json:"text"`
	IP        string `json:"ip,omitempty"`
	IsSystem  bool   `json:"isSystem"`
	Timestamp int64  `json:"timestamp"` // milliseconds since epoch
}

// Sanitized returns a copy of the message with the originating address
// removed, safe to broadcast to non-privileged parties.
func (m Message) Sanitized() Message {
	m.IP = ""
	return m
}

// SanitizeAll strips the originating address from every message in the slice.
func SanitizeAll(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Sanitized()
	}
	return out
}
