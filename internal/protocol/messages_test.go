package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseClientMessage_ChatMessage(t *testing.T) {
	data := []byte(`{"type":"chat message","user":"ana","text":"hola a todos"}`)

	msgType, msg, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("ParseClientMessage() error: %v", err)
	}
	if msgType != TypeChatMessage {
		t.Errorf("type = %q, want %q", msgType, TypeChatMessage)
	}
	m, ok := msg.(ChatMessageMsg)
	if !ok {
		t.Fatalf("expected ChatMessageMsg, got %T", msg)
	}
	if m.User != "ana" || m.Text != "hola a todos" {
		t.Errorf("unexpected payload: %+v", m)
	}
}

func TestParseClientMessage_AdminTempBan(t *testing.T) {
	data := []byte(`{"type":"admin temp ban","msgId":"m1","time":30,"unit":"seconds","reason":"spam"}`)

	msgType, msg, err := ParseClientMessage(data)
	if err != nil {
		t.Fatalf("ParseClientMessage() error: %v", err)
	}
	if msgType != TypeAdminTempBan {
		t.Errorf("type = %q, want %q", msgType, TypeAdminTempBan)
	}
	m, ok := msg.(AdminTempBanMsg)
	if !ok {
		t.Fatalf("expected AdminTempBanMsg, got %T", msg)
	}
	if m.MsgID != "m1" || m.Time != 30 || m.Unit != "seconds" || m.Reason != "spam" {
		t.Errorf("unexpected payload: %+v", m)
	}
}

func TestParseClientMessage_AllTypes(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"type":"chat message","user":"a","text":"b"}`, TypeChatMessage},
		{`{"type":"request full history"}`, TypeRequestFullHistory},
		{`{"type":"report message","id":"m1","reason":"r"}`, TypeReportMessage},
		{`{"type":"ping"}`, TypePing},
		{`{"type":"admin request reports"}`, TypeAdminRequestReports},
		{`{"type":"admin clear chat"}`, TypeAdminClearChat},
		{`{"type":"admin delete message","id":"m1"}`, TypeAdminDeleteMessage},
		{`{"type":"admin ban user","msgId":"m1","reason":"r"}`, TypeAdminBanUser},
		{`{"type":"admin temp ban","msgId":"m1","time":5,"unit":"minutes"}`, TypeAdminTempBan},
		{`{"type":"admin system message","text":"aviso"}`, TypeAdminSystemMessage},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			msgType, msg, err := ParseClientMessage([]byte(tt.raw))
			if err != nil {
				t.Fatalf("ParseClientMessage(%s) error: %v", tt.raw, err)
			}
			if msgType != tt.want {
				t.Errorf("type = %q, want %q", msgType, tt.want)
			}
			if msg == nil {
				t.Error("expected decoded struct, got nil")
			}
		})
	}
}

func TestParseClientMessage_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `not json`},
		{"missing type", `{"user":"ana"}`},
		{"empty type", `{"type":""}`},
		{"unknown type", `{"type":"make me admin"}`},
		{"server-only type", `{"type":"user count"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseClientMessage([]byte(tt.raw)); err == nil {
				t.Errorf("expected error for %s", tt.raw)
			}
		})
	}
}

func TestAdminBanUserMsg_MessageID(t *testing.T) {
	tests := []struct {
		name string
		msg  AdminBanUserMsg
		want string
	}{
		{"msgId preferred", AdminBanUserMsg{MsgID: "m1", ID: "m2"}, "m1"},
		{"id fallback", AdminBanUserMsg{ID: "m2"}, "m2"},
		{"both empty", AdminBanUserMsg{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.MessageID(); got != tt.want {
				t.Errorf("MessageID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAdminTypes(t *testing.T) {
	admin := []string{
		TypeAdminRequestReports, TypeAdminClearChat, TypeAdminDeleteMessage,
		TypeAdminBanUser, TypeAdminTempBan, TypeAdminSystemMessage,
	}
	for _, typ := range admin {
		if !AdminTypes[typ] {
			t.Errorf("expected %q to require the admin role", typ)
		}
	}

	open := []string{TypeChatMessage, TypeRequestFullHistory, TypeReportMessage, TypePing}
	for _, typ := range open {
		if AdminTypes[typ] {
			t.Errorf("expected %q to be open to every client", typ)
		}
	}
}

func TestNewServerMessage(t *testing.T) {
	payload := UserCountMsg{Count: 7}

	data, err := NewServerMessage(TypeUserCount, payload)
	if err != nil {
		t.Fatalf("NewServerMessage() error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if m["type"] != TypeUserCount {
		t.Errorf("type = %v, want %q", m["type"], TypeUserCount)
	}
	if m["count"] != float64(7) {
		t.Errorf("count = %v, want 7", m["count"])
	}
}

func TestNewServerMessage_OverridesTypeField(t *testing.T) {
	// The discriminator always wins over whatever the struct carried.
	data, err := NewServerMessage(TypePong, PongMsg{Type: "bogus"})
	if err != nil {
		t.Fatalf("NewServerMessage() error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if m["type"] != TypePong {
		t.Errorf("type = %v, want %q", m["type"], TypePong)
	}
}
