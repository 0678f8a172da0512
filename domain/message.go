// Package domain contains core concepts of the chat relay.
// This file defines the ChatMessage envelope carried by every text frame.
// No runtime, network, or transport logic should be added here.
package domain

import (
	"encoding/json"
	"maps"
)

type MessageType string

const (
	Enter MessageType = "ENTER"
	Talk  MessageType = "TALK"
	Leave MessageType = "LEAVE"
)

const (
	fieldRoomID      = "chatRoomId"
	fieldSenderID    = "senderId"
	fieldMessageType = "messageType"
)

// ChatMessage is transient: built for one inbound frame and dropped once fanned out.
// Fields holds every JSON member other than the routed ones so the envelope is
// re-encoded with everything the client sent.
type ChatMessage struct {
	RoomID      RoomID
	SenderID    string
	MessageType MessageType
	Fields      map[string]json.RawMessage
}

func (m ChatMessage) IsJoin() bool {
	return m.MessageType == Enter
}

func (m ChatMessage) IsLeave() bool {
	return m.MessageType == Leave
}

// Text returns the string value of a free-form field, if any.
func (m ChatMessage) Text(field string) (string, bool) {
	raw, ok := m.Fields[field]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// WithText returns a copy of the message where field holds value.
func (m ChatMessage) WithText(field, value string) ChatMessage {
	raw, err := json.Marshal(value)
	if err != nil {
		return m
	}
	fields := make(map[string]json.RawMessage, len(m.Fields)+1)
	maps.Copy(fields, m.Fields)
	fields[field] = raw
	m.Fields = fields
	return m
}

func (m ChatMessage) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Fields)+3)
	for k, v := range m.Fields {
		out[k] = v
	}
	out[fieldRoomID] = int64(m.RoomID)
	out[fieldSenderID] = m.SenderID
	out[fieldMessageType] = m.MessageType
	return json.Marshal(out)
}
