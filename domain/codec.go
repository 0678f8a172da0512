package domain

import (
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// envelope holds the routed members of a frame. Pointers let validation tell
// a missing room id apart from room 0.
type envelope struct {
	ChatRoomID  *int64  `json:"chatRoomId" validate:"required"`
	SenderID    *string `json:"senderId"`
	MessageType *string `json:"messageType" validate:"required,min=1"`
}

// Decode turns a text frame into a ChatMessage.
// Any failure is reported as errors.ErrDecode and the frame must be dropped.
// Invalid UTF-8 is rejected: free-form fields are relayed byte for byte and
// peers must fail a connection that receives an invalid text frame.
func Decode(payload []byte) (ChatMessage, error) {
	if !utf8.Valid(payload) {
		return ChatMessage{}, fmt.Errorf("%w: payload is not valid UTF-8", errors.ErrDecode)
	}
	var head envelope
	if err := json.Unmarshal(payload, &head); err != nil {
		return ChatMessage{}, fmt.Errorf("%w: %v", errors.ErrDecode, err)
	}
	if err := validate.Struct(head); err != nil {
		return ChatMessage{}, fmt.Errorf("%w: %v", errors.ErrDecode, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return ChatMessage{}, fmt.Errorf("%w: %v", errors.ErrDecode, err)
	}
	delete(fields, fieldRoomID)
	delete(fields, fieldSenderID)
	delete(fields, fieldMessageType)

	msg := ChatMessage{
		RoomID:      RoomID(*head.ChatRoomID),
		MessageType: MessageType(*head.MessageType),
		Fields:      fields,
	}
	if head.SenderID != nil {
		msg.SenderID = *head.SenderID
	}
	return msg, nil
}

// Encode serializes the envelope for the wire.
func Encode(msg ChatMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	msg, err := Decode(data)
	if err != nil {
		return err
	}
	*m = msg
	return nil
}
