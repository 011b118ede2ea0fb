package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "castbot/internal/transport"
	"castbot/internal/transport/telegram"
	logx "castbot/pkg/logx"
)

type recordingHandler struct {
	mu      sync.Mutex
	got     []kit.Update
	err     error
	ctxErrs []error
	wait    chan struct{}
}

func (h *recordingHandler) Handle(ctx context.Context, up kit.Update) error {
	var ctxErr error
	if h.wait != nil {
		<-h.wait
		select {
		case <-ctx.Done():
			ctxErr = ctx.Err()
		case <-time.After(time.Second):
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got = append(h.got, up)
	h.ctxErrs = append(h.ctxErrs, ctxErr)
	return h.err
}

func (h *recordingHandler) updates() []kit.Update {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]kit.Update(nil), h.got...)
}

const startUpdate = `{"update_id":10,"message":{"message_id":5,"date":1700000000,
"chat":{"id":42,"type":"private"},"from":{"id":42,"is_bot":false,"first_name":"a"},
"text":"/start"}}`

func newTestServer(t *testing.T, cfg Config, h Handler) *Server {
	t.Helper()
	s, err := New(cfg, telegram.DecodeUpdate, h, logx.Nop())
	require.NoError(t, err)
	return s
}

func TestWebhookDispatchesUpdate(t *testing.T) {
	h := &recordingHandler{}
	s := newTestServer(t, Config{}, h)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(startUpdate)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	got := h.updates()
	require.Len(t, got, 1)
	assert.Equal(t, 10, got[0].ID)
	require.NotNil(t, got[0].Message)
	assert.Equal(t, int64(42), got[0].Message.ChatID)
	assert.Equal(t, "/start", got[0].Message.Text)
}

func TestWebhookHandlerErrorStillOK(t *testing.T) {
	h := &recordingHandler{err: errors.New("boom")}
	s := newTestServer(t, Config{}, h)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(startUpdate)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.EqualValues(t, 1, health.Handled)
	assert.EqualValues(t, 1, health.Failed)
}

func TestWebhookBadPayload(t *testing.T) {
	h := &recordingHandler{}
	s := newTestServer(t, Config{}, h)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, h.updates())
}

func TestWebhookSecretToken(t *testing.T) {
	h := &recordingHandler{}
	s := newTestServer(t, Config{Path: "hook", SecretToken: "s3cret"}, h)

	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(startUpdate))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(startUpdate))
	req.Header.Set(SecretHeader, "wrong")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, h.updates())

	req = httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(startUpdate))
	req.Header.Set(SecretHeader, "s3cret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, h.updates(), 1)
}

func TestWebhookOnlyPost(t *testing.T) {
	s := newTestServer(t, Config{}, &recordingHandler{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServeShutdownCancelsInFlight(t *testing.T) {
	h := &recordingHandler{wait: make(chan struct{})}
	s := newTestServer(t, Config{ShutdownTimeout: 2 * time.Second}, h)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	respCh := make(chan int, 1)
	go func() {
		resp, err := http.Post("http://"+ln.Addr().String()+"/", "application/json", strings.NewReader(startUpdate))
		if err != nil {
			respCh <- 0
			return
		}
		_ = resp.Body.Close()
		respCh <- resp.StatusCode
	}()

	// Let the request reach the handler, then shut down and release it.
	require.Eventually(t, func() bool { return s.dispatchMuLocked() }, 2*time.Second, 10*time.Millisecond)
	cancel()
	close(h.wait)

	assert.Equal(t, http.StatusOK, <-respCh)
	require.NoError(t, <-done)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.ctxErrs, 1)
	assert.ErrorIs(t, h.ctxErrs[0], context.Canceled)
}

func (s *Server) dispatchMuLocked() bool {
	if s.dispatchMu.TryLock() {
		s.dispatchMu.Unlock()
		return false
	}
	return true
}

func TestPprofRequiresSecret(t *testing.T) {
	s := newTestServer(t, Config{Pprof: true}, &recordingHandler{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s = newTestServer(t, Config{Pprof: true, SecretToken: "tok"}, &recordingHandler{})
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
