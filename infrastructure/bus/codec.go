package bus

import (
	"chat-relay/contract"
	"encoding/json"
	"fmt"
)

func encode(msg contract.BusMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func decode(raw []byte) (contract.BusMessage, error) {
	var msg contract.BusMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return contract.BusMessage{}, fmt.Errorf("decoding bus message: %w", err)
	}
	return msg, nil
}

// channel namespacing for room pub/sub
func channel(prefix string) string { return prefix + ":rooms" }
