// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"sync"

	kit "castbot/internal/transport"
)

type Sent struct {
	To      kit.Recipient
	Text    string
	PhotoID string
	Opt     kit.SendOptions
	Ref     kit.MessageRef
}

type Edit struct {
	Ref  kit.MessageRef
	Text string
}

// Adapter records every outbound call. Fail maps a recipient to the error
// its sends return.
type Adapter struct {
	mu     sync.Mutex
	nextID int

	Fail  map[kit.Recipient]error
	Sent  []Sent
	Edits []Edit
	Menus [][]kit.BotCommand

	// OnSend runs before each send; tests use it to cancel mid-loop.
	OnSend func(to kit.Recipient)
}

func New() *Adapter {
	return &Adapter{Fail: map[kit.Recipient]error{}}
}

func (a *Adapter) SendText(ctx context.Context, to kit.Recipient, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return a.record(ctx, to, text, "", opt)
}

func (a *Adapter) SendPhoto(ctx context.Context, to kit.Recipient, photo kit.Photo, opt *kit.SendOptions) (kit.MessageRef, error) {
	return a.record(ctx, to, photo.Caption, photo.FileID, opt)
}

func (a *Adapter) record(ctx context.Context, to kit.Recipient, text, photoID string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if a.OnSend != nil {
		a.OnSend(to)
	}
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.Fail[to]; err != nil {
		return kit.MessageRef{}, err
	}
	a.nextID++
	chatID, _ := to.ChatID()
	ref := kit.MessageRef{ChatID: chatID, MessageID: a.nextID}
	s := Sent{To: to, Text: text, PhotoID: photoID, Ref: ref}
	if opt != nil {
		s.Opt = *opt
	}
	a.Sent = append(a.Sent, s)
	return ref, nil
}

func (a *Adapter) EditText(_ context.Context, ref kit.MessageRef, text string, _ *kit.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Edits = append(a.Edits, Edit{Ref: ref, Text: text})
	return nil
}

func (a *Adapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Menus = append(a.Menus, append([]kit.BotCommand(nil), cmds...))
	return nil
}

func (a *Adapter) Start(ctx context.Context, _ chan<- kit.Update) error {
	<-ctx.Done()
	return nil
}

func (a *Adapter) Stop(context.Context) error { return nil }

// SentTo returns the messages delivered to one recipient.
func (a *Adapter) SentTo(to kit.Recipient) []Sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []Sent
	for _, s := range a.Sent {
		if s.To == to {
			out = append(out, s)
		}
	}
	return out
}

func (a *Adapter) SentCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Sent)
}

func (a *Adapter) LastEdit() (Edit, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.Edits) == 0 {
		return Edit{}, false
	}
	return a.Edits[len(a.Edits)-1], true
}

var (
	_ kit.Adapter            = (*Adapter)(nil)
	_ kit.CommandMenuUpdater = (*Adapter)(nil)
)
