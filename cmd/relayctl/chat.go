package main

import (
	"bufio"
	"chat-relay/domain"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
)

// chat enters room, sends every input line as a TALK and prints what the room says.
func chat(ctx context.Context, cfg Config, room int64, sender string, in io.Reader, out io.Writer) error {
	url := "ws" + strings.TrimPrefix(strings.TrimRight(cfg.RelayURL, "/"), "http") + "/ws/chat"
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", url, err)
	}
	defer ws.Close()

	go func() {
		<-ctx.Done()
		_ = ws.Close()
	}()

	if err := ws.WriteMessage(websocket.TextMessage, envelope(room, sender, domain.Enter, "")); err != nil {
		return err
	}

	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			fmt.Fprintln(out, formatIncoming(data, sender, cfg.Colours))
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || ctx.Err() != nil {
				return nil
			}
			return err
		case line, ok := <-lines:
			if !ok {
				return ws.WriteMessage(websocket.TextMessage, envelope(room, sender, domain.Leave, ""))
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := ws.WriteMessage(websocket.TextMessage, envelope(room, sender, domain.Talk, line)); err != nil {
				return err
			}
		}
	}
}

func envelope(room int64, sender string, kind domain.MessageType, text string) []byte {
	msg := map[string]any{"chatRoomId": room, "senderId": sender, "messageType": kind}
	if text != "" {
		msg["text"] = text
	}
	data, _ := json.Marshal(msg)
	return data
}

// formatIncoming renders an envelope as one line. Frames that are not envelopes are shown raw.
func formatIncoming(data []byte, self string, colours bool) string {
	msg, err := domain.Decode(data)
	if err != nil {
		return string(data)
	}

	var line string
	switch msg.MessageType {
	case domain.Enter:
		line = fmt.Sprintf("[room %d] %s entered", msg.RoomID, msg.SenderID)
	case domain.Leave:
		line = fmt.Sprintf("[room %d] %s left", msg.RoomID, msg.SenderID)
	default:
		text, _ := msg.Text("text")
		line = fmt.Sprintf("[room %d] %s: %s", msg.RoomID, msg.SenderID, text)
	}
	if !colours {
		return line
	}

	switch {
	case msg.SenderID == self:
		return color.New(color.FgGray).Render(line)
	case msg.MessageType == domain.Talk:
		return color.New(color.FgGreen).Render(line)
	default:
		return color.New(color.BgBlack, color.FgCyan).Render(line)
	}
}
