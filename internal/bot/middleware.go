package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "castbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// slowCommand is the duration above which a successful command is logged at
// info instead of debug.
const slowCommand = 750 * time.Millisecond

// Chain wraps h so that mw[0] runs first.
func Chain(h HandlerFunc, mw ...Middleware) HandlerFunc {
	for i := range mw {
		h = mw[len(mw)-1-i](h)
	}
	return h
}

// WithTimeout bounds the handler; d <= 0 leaves ctx alone. Broadcasts use
// no timeout and rely on shutdown cancellation instead.
func WithTimeout(d time.Duration) Middleware {
	if d <= 0 {
		return func(next HandlerFunc) HandlerFunc { return next }
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// Recover turns a handler panic into an error so one bad update never takes
// the process down.
func Recover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				req.Logger.Error("command panicked",
					logx.String("cmd", req.Command),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("command %s panicked: %v", req.Command, r)
			}()
			return next(ctx, req)
		}
	}
}

func LogCommand() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			took := logx.Duration("took", time.Since(start))

			switch {
			case err != nil:
				req.Logger.Warn("command failed", took, logx.Err(err))
			case time.Since(start) >= slowCommand:
				req.Logger.Info("command done (slow)", took)
			default:
				req.Logger.Debug("command done", took)
			}
			return err
		}
	}
}
