package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"castbot/internal/broadcast"
	"castbot/internal/storage"
	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

var ErrUnauthorized = errors.New("unauthorized")

const (
	textUnknown      = "unknown command. try /help"
	textUnauthorized = "⛔ This command is for the bot admin only."
)

// Settings are the parts of the dispatcher that follow config reloads.
type Settings struct {
	// AdminChatID is the only chat allowed to run admin commands. 0 means
	// nobody.
	AdminChatID   int64
	StaticChatIDs []string
	ParseMode     string
	Report        broadcast.ReportOptions
}

type Options struct {
	Sender      kit.Sender
	Store       storage.Store
	Broadcaster *broadcast.Service
	Settings    Settings
	// Username is the bot's handle; "/cmd@other_bot" is ignored when set.
	Username string
	Log      logx.Logger
}

type Dispatcher struct {
	sender   kit.Sender
	store    storage.Store
	bc       *broadcast.Service
	log      logx.Logger
	username string

	settings atomic.Pointer[Settings]

	commands []Command
	index    map[string]*Command
}

func New(opt Options) (*Dispatcher, error) {
	if opt.Sender == nil {
		return nil, errors.New("bot: sender is required")
	}
	if opt.Store == nil {
		return nil, errors.New("bot: store is required")
	}
	if opt.Broadcaster == nil {
		return nil, errors.New("bot: broadcaster is required")
	}
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		sender:   opt.Sender,
		store:    opt.Store,
		bc:       opt.Broadcaster,
		log:      log,
		username: strings.TrimPrefix(strings.TrimSpace(opt.Username), "@"),
	}
	d.Apply(opt.Settings)
	d.register(d.builtinCommands())
	return d, nil
}

// Apply swaps the live settings. Safe for concurrent use.
func (d *Dispatcher) Apply(s Settings) {
	s.StaticChatIDs = slices.Clone(s.StaticChatIDs)
	if strings.TrimSpace(s.ParseMode) == "" {
		s.ParseMode = "HTML"
	}
	d.settings.Store(&s)
}

func (d *Dispatcher) Settings() Settings {
	s := *d.settings.Load()
	s.StaticChatIDs = slices.Clone(s.StaticChatIDs)
	return s
}

func (d *Dispatcher) isAdmin(chatID int64) bool {
	admin := d.settings.Load().AdminChatID
	return admin != 0 && chatID == admin
}

func (d *Dispatcher) register(cmds []Command) {
	d.commands = cmds
	d.index = map[string]*Command{}
	for i := range d.commands {
		c := &d.commands[i]
		d.index[c.Name] = c
		for _, a := range c.Aliases {
			d.index[a] = c
		}
	}
}

// Commands returns the registered commands in registration order.
func (d *Dispatcher) Commands() []Command { return slices.Clone(d.commands) }

// Handle processes one update to completion. Non-command messages are
// ignored. The returned error is informational: the reply, if any, has
// already been sent.
func (d *Dispatcher) Handle(ctx context.Context, up kit.Update) error {
	msg := up.Message
	if msg == nil {
		return nil
	}
	name, mention, rest, ok := parseCommand(msg.Body())
	if !ok {
		return nil
	}
	if mention != "" && d.username != "" && !strings.EqualFold(mention, d.username) {
		return nil
	}

	rid := newReqID()
	req := &Request{
		Update:  up,
		Msg:     msg,
		Chat:    kit.ChatRecipient(msg.ChatID),
		FromID:  msg.FromID,
		Command: name,
		Args:    strings.Fields(rest),
		ArgText: rest,
		ReqID:   rid,
		Logger: d.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", name),
		),
	}

	cmd, ok := d.index[name]
	if !ok {
		// Stay quiet in groups and channels where other bots' commands show up.
		if msg.ChatType == "" || msg.ChatType == "private" {
			return d.reply(ctx, req, textUnknown)
		}
		return nil
	}

	final := Chain(
		cmd.Handle,
		Recover(),
		LogCommand(),
		d.requireAccess(*cmd),
		WithTimeout(cmd.Timeout),
	)
	return final(ctx, req)
}

func (d *Dispatcher) requireAccess(cmd Command) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if cmd.Access != AccessAdmin || d.isAdmin(req.Msg.ChatID) {
				return next(ctx, req)
			}
			text := cmd.Denied
			if text == "" {
				text = textUnauthorized
			}
			_ = d.reply(ctx, req, text)
			d.audit(ctx, req, storage.AuditEntry{Action: cmd.Name + ".denied", Error: ErrUnauthorized.Error()})
			return fmt.Errorf("%w: chat %d", ErrUnauthorized, req.Msg.ChatID)
		}
	}
}

// DispatchLoop handles updates one at a time until ctx ends or updates is
// closed. Used with long polling.
func (d *Dispatcher) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	d.log.Info("command dispatcher started")
	defer d.log.Info("command dispatcher stopped")
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			_ = d.Handle(ctx, up)
		}
	}
}

func (d *Dispatcher) reply(ctx context.Context, req *Request, text string) error {
	_, err := d.sender.SendText(ctx, req.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	if err != nil {
		req.Logger.Warn("reply failed", logx.Err(err))
	}
	return err
}

func (d *Dispatcher) audit(ctx context.Context, req *Request, e storage.AuditEntry) {
	e.ActorID = req.FromID
	e.ChatID = req.Msg.ChatID
	e.ActorUsername = req.Msg.FromUsername
	if err := d.store.AppendAudit(ctx, e); err != nil {
		req.Logger.Debug("audit append failed", logx.Err(err))
	}
}
