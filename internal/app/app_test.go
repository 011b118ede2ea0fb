package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castbot/internal/config"
)

type botAPI struct {
	mu    sync.Mutex
	calls map[string][]map[string]any
	next  int
}

func (f *botAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	params := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&params)

	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string][]map[string]any{}
	}
	f.calls[method] = append(f.calls[method], params)
	f.next++
	id := f.next
	f.mu.Unlock()

	switch method {
	case "getMe":
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Cast","username":"castbot"}}`)
	case "sendMessage", "editMessageText":
		chatID, err := strconv.ParseInt(fmt.Sprint(params["chat_id"]), 10, 64)
		if err != nil {
			chatID = -100
		}
		fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"date":0,"chat":{"id":%d,"type":"private"},"text":"x"}}`, id, chatID)
	default:
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	}
}

func (f *botAPI) sent(method string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.calls[method]...)
}

func update(id int, chatID int64, text string) string {
	return fmt.Sprintf(`{"update_id":%d,"message":{"message_id":%d,"date":1700000000,"chat":{"id":%d,"type":"private"},"from":{"id":%d,"is_bot":false,"first_name":"u"},"text":%q}}`,
		id, id, chatID, chatID, text)
}

func TestAppWebhookFlow(t *testing.T) {
	api := &botAPI{}
	tgSrv := httptest.NewServer(api)
	t.Cleanup(tgSrv.Close)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "castbot.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
telegram:
  token: "123:abc"
  admin_chat_id: 777
  chat_ids: ["@news"]
  api_url: %q
webhook:
  listen: "127.0.0.1:0"
broadcast:
  send_interval: "0s"
storage:
  driver: memory
logging:
  level: error
  console: false
`, tgSrv.URL)), 0o644))

	ctx := context.Background()
	a, err := New(ctx, Options{ConfigPath: cfgPath, HTTPClient: tgSrv.Client()})
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(stopCtx, "test")
	})

	post := func(body string) int {
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		return rec.Code
	}

	require.Equal(t, http.StatusOK, post(update(1, 42, "/start")))
	n, err := a.store.CountSubscribers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Equal(t, http.StatusOK, post(update(2, 42, "/broadcast hello")))
	require.Equal(t, http.StatusOK, post(update(3, 777, "/broadcast hello")))

	var delivered []string
	for _, p := range api.sent("sendMessage") {
		if p["text"] == "hello" {
			delivered = append(delivered, fmt.Sprint(p["chat_id"]))
		}
	}
	assert.Equal(t, []string{"@news", "42"}, delivered)

	edits := api.sent("editMessageText")
	require.Len(t, edits, 1)
	assert.Contains(t, edits[0]["text"], "Delivered: 2")

	require.Eventually(t, func() bool { return len(api.sent("setMyCommands")) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestNewRequiresToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "castbot.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"storage":{"driver":"memory"}}`), 0o644))
	_, err := New(context.Background(), Options{ConfigPath: path})
	require.ErrorIs(t, err, config.ErrMissingToken)
}

func TestConfigMapping(t *testing.T) {
	cfg := config.Default()
	cfg.Telegram.AdminChatID = 5
	cfg.Telegram.ChatIDs = []string{"1"}
	cfg.Broadcast.SendInterval = ""
	cfg.Storage.Driver = " SQLite "
	cfg.Webhook.SecretToken = " s "

	bc, err := mapBroadcastConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, bc.SendInterval)

	sc, err := MapStorageConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", sc.Driver)
	assert.Equal(t, time.Second, sc.BusyTimeout)

	st := mapBotSettings(cfg)
	assert.Equal(t, int64(5), st.AdminChatID)
	assert.Equal(t, []string{"1"}, st.StaticChatIDs)
	assert.Equal(t, 10, st.Report.MaxFailures)

	srv, err := mapServerConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "s", srv.SecretToken)
	assert.Equal(t, ":8080", srv.Listen)
}
