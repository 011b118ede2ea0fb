package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"castbot/internal/broadcast"
	"castbot/internal/storage"
	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
	"castbot/pkg/tgui"
)

const (
	textBroadcastDenied = "❌ You are not allowed to broadcast."
	textBroadcastUsage  = "❌ Add the message text after the command.\n\nExample:\n/broadcast Version 1.2.0 is out!"
)

func (d *Dispatcher) builtinCommands() []Command {
	return []Command{
		{
			Name:        "start",
			Description: "Subscribe to updates",
			Handle:      d.handleStart,
		},
		{
			Name:        "stop",
			Aliases:     []string{"unsubscribe"},
			Description: "Unsubscribe from updates",
			Handle:      d.handleStop,
		},
		{
			Name:        "broadcast",
			Description: "Send a message to all subscribers",
			Usage:       "/broadcast <text> (or a photo with this caption)",
			Access:      AccessAdmin,
			Denied:      textBroadcastDenied,
			Handle:      d.handleBroadcast,
		},
		{
			Name:        "stats",
			Description: "Subscriber and broadcast stats",
			Access:      AccessAdmin,
			Timeout:     10 * time.Second,
			Handle:      d.handleStats,
		},
		{
			Name:        "help",
			Description: "List commands",
			Handle:      d.handleHelp,
		},
	}
}

func (d *Dispatcher) handleStart(ctx context.Context, req *Request) error {
	if _, err := d.store.AddSubscriber(ctx, req.Chat.String()); err != nil {
		_ = d.reply(ctx, req, "⚠️ Could not subscribe right now, please try again later.")
		return fmt.Errorf("subscribe: %w", err)
	}
	return d.reply(ctx, req, "Hi! You are subscribed to updates. Your chat_id: "+tgui.Code(req.Chat.String()).String())
}

func (d *Dispatcher) handleStop(ctx context.Context, req *Request) error {
	removed, err := d.store.RemoveSubscriber(ctx, req.Chat.String())
	if err != nil {
		_ = d.reply(ctx, req, "⚠️ Could not unsubscribe right now, please try again later.")
		return fmt.Errorf("unsubscribe: %w", err)
	}
	if !removed {
		return d.reply(ctx, req, "You are not subscribed. Send /start to subscribe.")
	}
	return d.reply(ctx, req, "You are unsubscribed. Send /start to subscribe again.")
}

func (d *Dispatcher) handleBroadcast(ctx context.Context, req *Request) error {
	s := d.Settings()
	pm := s.ParseMode
	if strings.EqualFold(pm, "none") {
		pm = ""
	}
	msg := broadcast.Message{Text: req.ArgText, ParseMode: pm}
	if req.Msg.HasPhoto() {
		msg.PhotoID = req.Msg.PhotoID
	}
	if msg.Text == "" && !msg.IsPhoto() {
		return d.reply(ctx, req, tgui.Esc(textBroadcastUsage).String())
	}

	status, err := d.sender.SendText(ctx, req.Chat, broadcast.StartedText, nil)
	if err != nil {
		req.Logger.Warn("status message failed", logx.Err(err))
	}

	stored, err := d.store.ListSubscribers(ctx)
	if err != nil {
		d.finishStatus(ctx, req, status, "❌ Broadcast failed: could not load subscribers.")
		return fmt.Errorf("list subscribers: %w", err)
	}
	recipients := broadcast.Merge(s.StaticChatIDs, stored)

	res := d.bc.Run(ctx, "broadcast", recipients, msg)
	// The loop may have been cut short; the report still goes out.
	rctx := context.WithoutCancel(ctx)
	d.finishStatus(rctx, req, status, broadcast.FormatReport(res, s.Report))

	meta, _ := json.Marshal(map[string]any{"job": res.JobID, "photo": msg.IsPhoto(), "canceled": res.Canceled})
	d.audit(rctx, req, storage.AuditEntry{
		Action:   "broadcast",
		Target:   strconv.Itoa(res.Total) + " recipients",
		OK:       res.Sent,
		Fail:     res.Failed,
		TookMS:   res.Duration().Milliseconds(),
		MetaJSON: string(meta),
	})
	return nil
}

// finishStatus edits the "started" message into text, or sends text as a
// new message when there is nothing to edit.
func (d *Dispatcher) finishStatus(ctx context.Context, req *Request, status kit.MessageRef, text string) {
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if !status.IsZero() {
		err := d.sender.EditText(ctx, status, text, opt)
		if err == nil {
			return
		}
		req.Logger.Warn("status edit failed", logx.Err(err))
	}
	_, _ = d.sender.SendText(ctx, req.Chat, text, opt)
}

func (d *Dispatcher) handleStats(ctx context.Context, req *Request) error {
	s := d.Settings()
	stored, err := d.store.ListSubscribers(ctx)
	if err != nil {
		_ = d.reply(ctx, req, "⚠️ Could not load subscribers.")
		return fmt.Errorf("list subscribers: %w", err)
	}
	lines := []tgui.H{
		tgui.B("📊 Stats"),
		tgui.Esc(fmt.Sprintf("• Subscribers: %d", len(stored))),
		tgui.Esc(fmt.Sprintf("• Static list: %d", len(s.StaticChatIDs))),
		tgui.Esc(fmt.Sprintf("• Recipients: %d", len(broadcast.Merge(s.StaticChatIDs, stored)))),
	}
	if last, ok := d.bc.Last(); ok {
		state := "finished"
		switch {
		case last.Running:
			state = "running"
		case last.Canceled:
			state = "interrupted"
		}
		lines = append(lines,
			"",
			tgui.B("Last broadcast"),
			tgui.Esc(fmt.Sprintf("• %s at %s", state, last.StartedAt.UTC().Format("2006-01-02 15:04:05 MST"))),
			tgui.Esc(fmt.Sprintf("• Delivered: %d, failed: %d of %d", last.Sent, last.Failed, last.Total)),
		)
	}
	return d.reply(ctx, req, tgui.JoinH("\n", lines...).String())
}

func (d *Dispatcher) handleHelp(ctx context.Context, req *Request) error {
	return d.reply(ctx, req, d.helpHTML(d.isAdmin(req.Msg.ChatID)))
}

func (d *Dispatcher) helpHTML(admin bool) string {
	lines := []tgui.H{tgui.B("Commands")}
	for _, c := range d.visibleCommands(admin) {
		line := tgui.Code("/"+c.Name).String() + " " + tgui.Esc("- "+c.Description).String()
		if c.Usage != "" {
			line += "\n  " + tgui.I(c.Usage).String()
		}
		lines = append(lines, tgui.Raw(line))
	}
	return strings.TrimSpace(tgui.JoinH("\n", lines...).String())
}

func (d *Dispatcher) visibleCommands(admin bool) []Command {
	out := make([]Command, 0, len(d.commands))
	for _, c := range d.commands {
		if c.Hidden || (c.Access == AccessAdmin && !admin) {
			continue
		}
		out = append(out, c)
	}
	return out
}
