package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	kit "castbot/internal/transport"
	"castbot/pkg/tgui"
)

const (
	alertQueueSize = 128
	alertSendLimit = 10 * time.Second
	alertMaxValue  = 300
	alertMaxRunes  = 3500
)

// adminSink forwards log lines at or above the configured level to the
// admin chat. Writes never block: lines over the rate limit or a full queue
// are dropped.
type adminSink struct{ svc *Service }

func (a adminSink) Write(p []byte) (int, error) {
	return a.WriteLevel(zerolog.NoLevel, p)
}

func (a adminSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := a.svc
	s.mu.Lock()
	to, lim, floor := s.target, s.limiter, s.minLevel
	s.mu.Unlock()

	if to == "" || lim == nil || level == zerolog.NoLevel || level < floor {
		return len(p), nil
	}
	if !lim.Allow() {
		return len(p), nil
	}
	if text := formatAlert(p); text != "" {
		select {
		case s.alerts <- text:
		default:
		}
	}
	return len(p), nil
}

// startAlerts launches the delivery goroutine once.
func (s *Service) startAlerts() {
	s.alertOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.alertCancel = cancel
		s.alertWG.Add(1)
		go func() {
			defer s.alertWG.Done()
			s.deliverAlerts(ctx)
		}()
	})
}

func (s *Service) deliverAlerts(ctx context.Context) {
	opts := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-s.alerts:
			s.mu.Lock()
			to := s.target
			s.mu.Unlock()
			if to == "" {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, alertSendLimit)
			_, _ = s.sender.SendText(sctx, to, text, opts)
			cancel()
		}
	}
}

// formatAlert renders one zerolog JSON line as Telegram HTML:
// "<b>LEVEL</b> message" then one "key: value" line per field, sorted.
// Non-JSON input is sent escaped as-is.
func formatAlert(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return tgui.Esc(tgui.TruncRunes(strings.TrimSpace(string(p)), alertMaxRunes)).String()
	}

	level, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	lines := make([]tgui.H, 0, len(m))
	head := tgui.Esc(msg)
	if level != "" {
		head = tgui.Raw(tgui.B(strings.ToUpper(level)).String() + " " + head.String())
	}
	lines = append(lines, head)

	keys := make([]string, 0, len(m))
	for k := range m {
		if k != "time" && k != "level" && k != "message" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		v := tgui.TruncRunes(fmt.Sprint(m[k]), alertMaxValue)
		lines = append(lines, tgui.Raw(tgui.Code(k).String()+": "+tgui.Esc(v).String()))
	}

	out := tgui.Lines(lines...).String()
	if utf8.RuneCountInString(out) > alertMaxRunes {
		// Cutting HTML could split a tag; fall back to escaped plain text.
		return tgui.Esc(tgui.TruncRunes(fmt.Sprintf("[%s] %s", strings.ToUpper(level), msg), alertMaxRunes)).String()
	}
	return out
}
