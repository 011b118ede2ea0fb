// Package server exposes the Telegram webhook endpoint over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Handler processes one decoded update to completion.
type Handler interface {
	Handle(ctx context.Context, up kit.Update) error
}

// Decoder turns a request body into an update.
type Decoder func(r io.Reader) (kit.Update, error)

type Config struct {
	Listen      string
	Path        string
	SecretToken string

	MaxBodyBytes int64

	// Pprof mounts net/http/pprof under /debug/pprof/. It is only served
	// when SecretToken is set, and requires it.
	Pprof bool

	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = ":8080"
	}
	c.Path = normalizePath(c.Path)
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	return c
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

type Server struct {
	cfg    Config
	decode Decoder
	h      Handler
	log    logx.Logger

	// Updates are handled one at a time, in arrival order.
	dispatchMu sync.Mutex

	base    atomic.Pointer[context.Context]
	started time.Time
	handled atomic.Uint64
	failed  atomic.Uint64
	router  chi.Router
}

func New(cfg Config, decode Decoder, h Handler, log logx.Logger) (*Server, error) {
	if decode == nil {
		return nil, errors.New("server: decoder is required")
	}
	if h == nil {
		return nil, errors.New("server: handler is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		cfg:     cfg.withDefaults(),
		decode:  decode,
		h:       h,
		log:     log,
		started: time.Now(),
	}
	bg := context.Background()
	s.base.Store(&bg)
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLog(s.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	r.Get("/healthz", s.handleHealth)
	r.With(s.requireSecret).Post(s.cfg.Path, s.handleWebhook)

	if s.cfg.Pprof {
		if s.cfg.SecretToken == "" {
			s.log.Warn("pprof requested without webhook secret; not mounted")
		} else {
			r.Route("/debug", func(r chi.Router) {
				r.Use(s.requireSecret)
				r.Mount("/", middleware.Profiler())
			})
		}
	}
	return r
}

// requireSecret accepts the Telegram secret header or a bearer token equal
// to cfg.SecretToken. With no secret configured everything passes.
func (s *Server) requireSecret(next http.Handler) http.Handler {
	want := []byte(s.cfg.SecretToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(want) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get(SecretHeader)
		if got == "" {
			got = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) baseContext() context.Context {
	if p := s.base.Load(); p != nil {
		return *p
	}
	return context.Background()
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	up, err := s.decode(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		s.log.Warn("bad webhook payload", logx.String("rid", middleware.GetReqID(r.Context())), logx.Err(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// A client disconnect must not abort a running broadcast; server
	// shutdown does.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	stop := context.AfterFunc(s.baseContext(), cancel)
	defer stop()

	s.dispatchMu.Lock()
	err = s.h.Handle(ctx, up)
	s.dispatchMu.Unlock()

	s.handled.Add(1)
	if err != nil {
		s.failed.Add(1)
		s.log.Debug("update handled with error", logx.Int("update_id", up.ID), logx.Err(err))
	}
	// Always 200: Telegram redelivers anything else.
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Handled uint64 `json:"handled"`
	Failed  uint64 `json:"failed"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Uptime:  time.Since(s.started).Truncate(time.Second).String(),
		Handled: s.handled.Load(),
		Failed:  s.failed.Load(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// Run listens on cfg.Listen and serves until ctx is canceled, then shuts
// down gracefully. In-flight updates see ctx's cancellation.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.base.Store(&ctx)

	// No WriteTimeout: the response is written after a broadcast finishes.
	srv := &http.Server{
		Handler:     s.router,
		ReadTimeout: s.cfg.ReadTimeout,
		IdleTimeout: s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("webhook server listening", logx.String("addr", ln.Addr().String()), logx.String("path", s.cfg.Path))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		s.log.Warn("webhook server shutdown", logx.Err(err))
	}
	s.log.Info("webhook server stopped")
	return nil
}

func requestLog(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				fields := []logx.Field{
					logx.String("rid", middleware.GetReqID(r.Context())),
					logx.String("method", r.Method),
					logx.String("path", r.URL.Path),
					logx.Int("status", ww.Status()),
					logx.Duration("took", time.Since(start)),
				}
				if ww.Status() >= 500 {
					log.Warn("http request", fields...)
					return
				}
				log.Debug("http request", fields...)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
