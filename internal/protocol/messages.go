// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type discriminator. The
// event names mirror the ones the existing web client already emits.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeChatMessage        = "chat message"
	TypeRequestFullHistory = "request full history"
	TypeReportMessage      = "report message"
	TypePing               = "ping"

	TypeAdminRequestReports = "admin request reports"
	TypeAdminClearChat      = "admin clear chat"
	TypeAdminDeleteMessage  = "admin delete message"
	TypeAdminBanUser        = "admin ban user"
	TypeAdminTempBan        = "admin temp ban"
	TypeAdminSystemMessage  = "admin system message"
)

// Server -> Client message types.
const (
	TypeUserCount      = "user count"
	TypeRecentHistory  = "recent history"
	TypeFullHistory    = "full history"
	TypeAllReports     = "all reports"
	TypeChatCleared    = "chat cleared"
	TypeMessageDeleted = "message deleted"
	TypeNewReport      = "new report"
	TypeBanned         = "banned"
	TypeError          = "error"
	TypePong           = "pong"
)

// AdminTypes is the set of client message types that require the admin role.
var AdminTypes = map[string]bool{
	TypeAdminRequestReports: true,
	TypeAdminClearChat:      true,
	TypeAdminDeleteMessage:  true,
	TypeAdminBanUser:        true,
	TypeAdminTempBan:        true,
	TypeAdminSystemMessage:  true,
}

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// ChatMessageMsg is an inbound chat message. Only user and text are taken
// from the client; id, timestamp and ip are assigned server-side.
type ChatMessageMsg struct {
	Type string `json:"type"`
	User string `json:"user"`
	Text string `json:"text"`
}

// RequestFullHistoryMsg asks for the entire stored history, oldest-first.
type RequestFullHistoryMsg struct {
	Type string `json:"type"`
}

// AdminRequestReportsMsg asks for the entire report queue, newest-first.
type AdminRequestReportsMsg struct {
	Type string `json:"type"`
}

// AdminClearChatMsg wipes the whole history.
type AdminClearChatMsg struct {
	Type string `json:"type"`
}

// AdminDeleteMessageMsg deletes a single message by id.
type AdminDeleteMessageMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// AdminBanUserMsg permanently bans the sender of the referenced message.
// Older clients send the message id in "id" instead of "msgId"; both are
// accepted.
type AdminBanUserMsg struct {
	Type   string `json:"type"`
	MsgID  string `json:"msgId"`
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// MessageID returns the referenced message id regardless of which field the
// client used.
func (m AdminBanUserMsg) MessageID() string {
	if m.MsgID != "" {
		return m.MsgID
	}
	return m.ID
}

// AdminTempBanMsg temporarily suspends the sender of the referenced message.
// Unit is one of "seconds", "minutes" or "hours"; anything else means minutes.
type AdminTempBanMsg struct {
	Type   string `json:"type"`
	MsgID  string `json:"msgId"`
	Time   int    `json:"time"`
	Unit   string `json:"unit"`
	Reason string `json:"reason"`
}

// ReportMessageMsg files a report against a message.
type ReportMessageMsg struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// AdminSystemMessageMsg posts a system notice to the chat.
type AdminSystemMessageMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// UserCountMsg carries the number of currently admitted connections.
type UserCountMsg struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// RecentHistoryMsg is sent right after admission with the latest messages.
// HasMore tells the client whether older messages exist beyond the window.
type RecentHistoryMsg struct {
	Type     string      `json:"type"`
	Messages interface{} `json:"messages"`
	HasMore  bool        `json:"hasMore"`
}

// FullHistoryMsg carries the entire sanitized history, oldest-first.
type FullHistoryMsg struct {
	Type     string      `json:"type"`
	Messages interface{} `json:"messages"`
}

// AllReportsMsg carries the entire report queue, newest-first. Sent only to
// admin connections.
type AllReportsMsg struct {
	Type    string      `json:"type"`
	Reports interface{} `json:"reports"`
}

// ChatClearedMsg tells clients to drop their local history.
type ChatClearedMsg struct {
	Type string `json:"type"`
}

// MessageDeletedMsg tells clients to remove a single message.
type MessageDeletedMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// NewReportMsg notifies admin connections about a freshly filed report.
type NewReportMsg struct {
	Type   string      `json:"type"`
	Report interface{} `json:"report"`
}

// BannedMsg is sent right before the server force-closes the connection.
type BannedMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeChatMessage:
		var m ChatMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRequestFullHistory:
		var m RequestFullHistoryMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAdminRequestReports:
		var m AdminRequestReportsMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAdminClearChat:
		var m AdminClearChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAdminDeleteMessage:
		var m AdminDeleteMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAdminBanUser:
		var m AdminBanUserMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAdminTempBan:
		var m AdminTempBanMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReportMessage:
		var m ReportMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAdminSystemMessage:
		var m AdminSystemMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
