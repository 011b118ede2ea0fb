package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "castbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSubscribersCommands(t *testing.T) {
	store := filepath.Join(t.TempDir(), "subs")
	cfg := writeConfig(t, fmt.Sprintf("storage:\n  driver: file\n  path: %q\n", store))
	base := []string{"--config", cfg, "--env-file", filepath.Join(t.TempDir(), "none.env"), "subscribers"}

	out, err := run(t, append(base, "add", "42", "@news", "42")...)
	require.NoError(t, err)
	assert.Equal(t, "42: added\n@news: added\n42: already subscribed\n", out)

	out, err = run(t, append(base, "list")...)
	require.NoError(t, err)
	assert.Equal(t, "42\n@news\n", out)

	out, err = run(t, append(base, "rm", "42", "7")...)
	require.NoError(t, err)
	assert.Equal(t, "42: removed\n7: not subscribed\n", out)

	out, err = run(t, append(base, "count")...)
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	_, err = run(t, append(base, "add", "has space")...)
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "--env-file", filepath.Join(t.TempDir(), "none.env"), "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "castbot dev"))
}

type webhookAPI struct {
	mu    sync.Mutex
	calls map[string]map[string]any
}

func (f *webhookAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	params := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&params)
	f.mu.Lock()
	f.calls[method] = params
	f.mu.Unlock()

	if method == "getWebhookInfo" {
		fmt.Fprint(w, `{"ok":true,"result":{"url":"https://bot.example.org/hook","has_custom_certificate":false,"pending_update_count":2}}`)
		return
	}
	fmt.Fprint(w, `{"ok":true,"result":true}`)
}

func TestWebhookCommands(t *testing.T) {
	api := &webhookAPI{calls: map[string]map[string]any{}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg := writeConfig(t, fmt.Sprintf(`
telegram:
  token: "123:abc"
  api_url: %q
webhook:
  public_url: "https://bot.example.org/hook"
  secret_token: "s3"
`, srv.URL))
	base := []string{"--config", cfg, "--env-file", filepath.Join(t.TempDir(), "none.env"), "webhook"}

	out, err := run(t, append(base, "set")...)
	require.NoError(t, err)
	assert.Contains(t, out, "https://bot.example.org/hook")
	api.mu.Lock()
	set := api.calls["setWebhook"]
	api.mu.Unlock()
	require.NotNil(t, set)
	assert.Equal(t, "https://bot.example.org/hook", set["url"])
	assert.Equal(t, "s3", set["secret_token"])

	out, err = run(t, append(base, "info")...)
	require.NoError(t, err)
	assert.Contains(t, out, "pending: 2")

	out, err = run(t, append(base, "delete")...)
	require.NoError(t, err)
	assert.Contains(t, out, "webhook deleted")
}
