package transport

import (
	"context"
	"strconv"
	"strings"
)

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	ID      int
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ChatType     string
	FromID       int64
	FromUsername string
	Text         string

	// Photo messages carry the largest size's file id and the caption.
	PhotoID string
	Caption string
}

// Body returns the text a command is read from: the text for plain
// messages and the caption for media messages.
func (m *Message) Body() string {
	if m == nil {
		return ""
	}
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

func (m *Message) HasPhoto() bool { return m != nil && m.PhotoID != "" }

// Recipient is an opaque chat identifier: a numeric chat id or a
// public "@username".
type Recipient string

func ChatRecipient(chatID int64) Recipient {
	return Recipient(strconv.FormatInt(chatID, 10))
}

func (r Recipient) String() string { return string(r) }

// ChatID returns the numeric chat id, if r is one.
func (r Recipient) ChatID() (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(string(r)), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

func (r MessageRef) IsZero() bool { return r.ChatID == 0 && r.MessageID == 0 }

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Photo references an already uploaded Telegram file.
type Photo struct {
	FileID  string
	Caption string
}

// Sender is the outbound half of an adapter.
type Sender interface {
	SendText(ctx context.Context, to Recipient, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to Recipient, photo Photo, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
}

type Adapter interface {
	Sender

	// Start begins long polling. Webhook deployments never call it.
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (Telegram setMyCommands).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
