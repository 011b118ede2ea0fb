package telegram

import (
	"encoding/json"
	"fmt"
	"io"

	tele "gopkg.in/telebot.v4"

	kit "castbot/internal/transport"
)

// DecodeUpdate parses a webhook body. Updates other than messages and
// channel posts decode to an Update with a nil Message.
func DecodeUpdate(r io.Reader) (kit.Update, error) {
	var u tele.Update
	if err := json.NewDecoder(r).Decode(&u); err != nil {
		return kit.Update{}, fmt.Errorf("decode update: %w", err)
	}
	up := kit.Update{ID: u.ID}
	m := u.Message
	if m == nil {
		m = u.ChannelPost
	}
	if msg := toMessage(m); msg != nil {
		up.Kind = kit.UpdateMessage
		up.Message = msg
	}
	return up, nil
}

func toMessage(m *tele.Message) *kit.Message {
	if m == nil || m.Chat == nil {
		return nil
	}
	out := &kit.Message{
		ID:       m.ID,
		ChatID:   m.Chat.ID,
		ChatType: string(m.Chat.Type),
		Text:     m.Text,
		Caption:  m.Caption,
	}
	if m.Sender != nil {
		out.FromID = m.Sender.ID
		out.FromUsername = m.Sender.Username
	}
	if m.Photo != nil {
		out.PhotoID = m.Photo.FileID
	}
	return out
}
