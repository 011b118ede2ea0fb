package bot

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdmin
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	// Denied is the reply for callers without access. Empty uses a generic text.
	Denied  string
	Timeout time.Duration // 0 means no per-command deadline
	// Hidden commands are routable but left out of /help and the menu.
	Hidden bool
	Handle HandlerFunc
}

type Request struct {
	Update kit.Update
	Msg    *kit.Message
	Chat   kit.Recipient
	FromID int64

	Command string
	Args    []string
	// ArgText is everything after the command word, with inner formatting
	// and newlines kept.
	ArgText string

	ReqID  string
	Logger logx.Logger
}

// parseCommand splits "/cmd@bot rest" into its lowercased name, the bot
// mention and the remaining text.
func parseCommand(body string) (name, mention, rest string, ok bool) {
	body = strings.TrimLeftFunc(body, unicode.IsSpace)
	if !strings.HasPrefix(body, "/") {
		return "", "", "", false
	}
	word := body
	if i := strings.IndexFunc(body, unicode.IsSpace); i >= 0 {
		word, rest = body[:i], strings.TrimSpace(body[i:])
	}
	word = strings.TrimPrefix(word, "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word, mention = word[:i], word[i+1:]
	}
	if word == "" {
		return "", "", "", false
	}
	return strings.ToLower(word), mention, rest, true
}

var ridSeq uint64

func newReqID() string {
	n := atomic.AddUint64(&ridSeq, 1)
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatUint(n, 36)
}
