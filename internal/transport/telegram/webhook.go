package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "castbot/pkg/logx"
)

type WebhookSettings struct {
	URL         string
	SecretToken string
	DropPending bool
}

type WebhookInfo struct {
	URL            string
	PendingUpdates int
	LastError      string
	LastErrorAt    time.Time
}

// SetWebhook registers url with Telegram (setWebhook).
func (a *Adapter) SetWebhook(ctx context.Context, s WebhookSettings) error {
	url := strings.TrimSpace(s.URL)
	if url == "" {
		return errors.New("webhook url is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := a.bot.SetWebhook(&tele.Webhook{
		Endpoint:       &tele.WebhookEndpoint{PublicURL: url},
		SecretToken:    strings.TrimSpace(s.SecretToken),
		DropUpdates:    s.DropPending,
		AllowedUpdates: []string{"message", "channel_post"},
	})
	if err != nil {
		return fmt.Errorf("telegram setWebhook: %w", err)
	}
	a.log.Info("webhook registered", logx.String("url", url))
	return nil
}

// DeleteWebhook removes the webhook (deleteWebhook).
func (a *Adapter) DeleteWebhook(ctx context.Context, dropPending bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.bot.RemoveWebhook(dropPending); err != nil {
		return fmt.Errorf("telegram deleteWebhook: %w", err)
	}
	return nil
}

func (a *Adapter) WebhookInfo(ctx context.Context) (WebhookInfo, error) {
	if err := ctx.Err(); err != nil {
		return WebhookInfo{}, err
	}
	w, err := a.bot.Webhook()
	if err != nil {
		return WebhookInfo{}, fmt.Errorf("telegram getWebhookInfo: %w", err)
	}
	info := WebhookInfo{
		URL:            w.Listen,
		PendingUpdates: w.PendingUpdates,
		LastError:      w.ErrorMessage,
	}
	if w.ErrorUnixtime > 0 {
		info.LastErrorAt = time.Unix(w.ErrorUnixtime, 0)
	}
	return info, nil
}
