package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

type apiCall struct {
	Method string
	Params map[string]any
}

// fakeBotAPI answers the handful of Bot API methods the adapter uses.
type fakeBotAPI struct {
	mu    sync.Mutex
	calls []apiCall
	next  int
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	params := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&params)

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Params: params})
	f.next++
	id := f.next
	f.mu.Unlock()

	chat := fmt.Sprint(params["chat_id"])
	if chat == "@blocked" {
		fmt.Fprint(w, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`)
		return
	}
	chatID, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		chatID = -100
	}

	switch method {
	case "sendMessage", "editMessageText":
		fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"date":0,"chat":{"id":%d,"type":"private"},"text":%q}}`, id, chatID, params["text"])
	case "sendPhoto":
		fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"date":0,"chat":{"id":%d,"type":"private"},"caption":%q,"photo":[{"file_id":%q,"file_unique_id":"u","width":1,"height":1}]}}`,
			id, chatID, params["caption"], params["photo"])
	case "getWebhookInfo":
		fmt.Fprint(w, `{"ok":true,"result":{"url":"https://example.org/hook","has_custom_certificate":false,"pending_update_count":3,"last_error_date":1700000000,"last_error_message":"Connection refused"}}`)
	default:
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	}
}

func (f *fakeBotAPI) byMethod(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeBotAPI) {
	t.Helper()
	api := &fakeBotAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	a, err := New(Config{Token: "123:abc", APIURL: srv.URL, Offline: true, HTTPClient: srv.Client()}, logx.Nop())
	require.NoError(t, err)
	return a, api
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{Token: "  "}, logx.Nop())
	assert.Error(t, err)
}

func TestSendTextAndEdit(t *testing.T) {
	a, api := newTestAdapter(t)
	ctx := context.Background()

	ref, err := a.SendText(ctx, kit.ChatRecipient(42), "<b>hi</b>", &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	require.NoError(t, err)
	assert.Equal(t, int64(42), ref.ChatID)
	assert.NotZero(t, ref.MessageID)

	sent := api.byMethod("sendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, "42", sent[0].Params["chat_id"])
	assert.Equal(t, "HTML", sent[0].Params["parse_mode"])

	require.NoError(t, a.EditText(ctx, ref, "done", nil))
	edits := api.byMethod("editMessageText")
	require.Len(t, edits, 1)
	assert.Equal(t, "done", edits[0].Params["text"])
	assert.Equal(t, strconv.Itoa(ref.MessageID), fmt.Sprint(edits[0].Params["message_id"]))
}

func TestSendTextReportsAPIError(t *testing.T) {
	a, _ := newTestAdapter(t)
	_, err := a.SendText(context.Background(), "@blocked", "hi", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
}

func TestSendPhotoByFileID(t *testing.T) {
	a, api := newTestAdapter(t)
	_, err := a.SendPhoto(context.Background(), "@news", kit.Photo{FileID: "AgAD-photo", Caption: "new release"}, nil)
	require.NoError(t, err)

	calls := api.byMethod("sendPhoto")
	require.Len(t, calls, 1)
	assert.Equal(t, "@news", calls[0].Params["chat_id"])
	assert.Equal(t, "AgAD-photo", calls[0].Params["photo"])
	assert.Equal(t, "new release", calls[0].Params["caption"])

	_, err = a.SendPhoto(context.Background(), "@news", kit.Photo{}, nil)
	assert.Error(t, err)
}

func TestUpdateMenuCommandsDedup(t *testing.T) {
	a, api := newTestAdapter(t)
	cmds := []kit.BotCommand{{Command: "start", Description: "Subscribe"}, {Command: "/stop", Description: ""}}

	require.NoError(t, a.UpdateMenuCommands(context.Background(), cmds))
	require.NoError(t, a.UpdateMenuCommands(context.Background(), cmds))

	calls := api.byMethod("setMyCommands")
	require.Len(t, calls, 1)
	list, ok := calls[0].Params["commands"].([]any)
	require.True(t, ok)
	require.Len(t, list, 2)
	second := list[1].(map[string]any)
	assert.Equal(t, "stop", second["command"])
	assert.Equal(t, "stop", second["description"])
}

func TestWebhookAdmin(t *testing.T) {
	a, api := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.SetWebhook(ctx, WebhookSettings{URL: "https://example.org/hook", SecretToken: "s3cret", DropPending: true}))
	calls := api.byMethod("setWebhook")
	require.Len(t, calls, 1)
	assert.Equal(t, "https://example.org/hook", calls[0].Params["url"])
	assert.Equal(t, "s3cret", calls[0].Params["secret_token"])

	info, err := a.WebhookInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/hook", info.URL)
	assert.Equal(t, 3, info.PendingUpdates)
	assert.Equal(t, "Connection refused", info.LastError)

	require.NoError(t, a.DeleteWebhook(ctx, false))
	assert.Len(t, api.byMethod("deleteWebhook"), 1)

	assert.Error(t, a.SetWebhook(ctx, WebhookSettings{}))
}

func TestDecodeUpdate(t *testing.T) {
	body := `{"update_id":7,"message":{"message_id":3,"date":1,
		"chat":{"id":42,"type":"private"},
		"from":{"id":42,"is_bot":false,"first_name":"A","username":"alice"},
		"text":"/start"}}`
	up, err := DecodeUpdate(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 7, up.ID)
	assert.Equal(t, kit.UpdateMessage, up.Kind)
	require.NotNil(t, up.Message)
	assert.Equal(t, int64(42), up.Message.ChatID)
	assert.Equal(t, "private", up.Message.ChatType)
	assert.Equal(t, "alice", up.Message.FromUsername)
	assert.Equal(t, "/start", up.Message.Body())
}

func TestDecodePhotoUpdate(t *testing.T) {
	body := `{"update_id":8,"message":{"message_id":4,"date":1,
		"chat":{"id":1,"type":"private"},"from":{"id":1,"is_bot":false,"first_name":"Admin"},
		"photo":[{"file_id":"AgAD-big","file_unique_id":"b","width":1280,"height":720}],
		"caption":"/broadcast look"}}`
	up, err := DecodeUpdate(strings.NewReader(body))
	require.NoError(t, err)
	require.NotNil(t, up.Message)
	assert.True(t, up.Message.HasPhoto())
	assert.Equal(t, "AgAD-big", up.Message.PhotoID)
	assert.Equal(t, "/broadcast look", up.Message.Body())
}

func TestDecodeNonMessageUpdate(t *testing.T) {
	up, err := DecodeUpdate(strings.NewReader(`{"update_id":9,"my_chat_member":{}}`))
	require.NoError(t, err)
	assert.Nil(t, up.Message)

	_, err = DecodeUpdate(strings.NewReader(`{not json`))
	assert.Error(t, err)
}

func TestSplitTelegramText(t *testing.T) {
	assert.Equal(t, []string{""}, splitTelegramText("", 10, ""))

	in := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	assert.Equal(t, []string{strings.Repeat("a", 8), strings.Repeat("b", 8)}, splitTelegramText(in, 10, ""))

	html := "abcdef<b>xy</b>"
	chunks := splitTelegramText(html, 8, "HTML")
	assert.Equal(t, "abcdef", chunks[0])
	assert.Equal(t, html, strings.Join(chunks, ""))
}
