package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

var (
	// ErrDisabled is returned by a store that has been closed.
	ErrDisabled = errors.New("storage disabled")
	// ErrInvalidID rejects empty, oversized or whitespace-containing ids.
	ErrInvalidID = errors.New("invalid subscriber id")
)

const maxIDLen = 64

// Config configures storage.
//
// Driver values: "memory", "file", "sqlite", "redis", "postgres".
// An empty Driver or "none" selects "memory".
type Config struct {
	Driver      string
	Path        string        // file, sqlite
	DSN         string        // redis URL or postgres connection string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Prefix      string        // redis key prefix; default "castbot:"
}

// Subscribers is the recipient table. Ids are opaque: numeric chat ids and
// "@channel" usernames are both valid. List returns ids in subscription order.
type Subscribers interface {
	AddSubscriber(ctx context.Context, id string) (added bool, err error)
	RemoveSubscriber(ctx context.Context, id string) (removed bool, err error)
	ListSubscribers(ctx context.Context) ([]string, error)
	CountSubscribers(ctx context.Context) (int, error)
	HasSubscriber(ctx context.Context, id string) (bool, error)
}

// Store is the persistence API used by the bot.
type Store interface {
	Subscribers
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// AuditEntry records an operator action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At            time.Time `json:"at"`
	ActorID       int64     `json:"actor_id"`
	ActorUsername string    `json:"actor_username,omitempty"`
	ChatID        int64     `json:"chat_id"`
	Action        string    `json:"action"`
	Target        string    `json:"target,omitempty"`
	OK            int       `json:"ok"`
	Fail          int       `json:"fail"`
	Error         string    `json:"err,omitempty"`
	TookMS        int64     `json:"took_ms"`
	MetaJSON      string    `json:"meta,omitempty"`
}

// NormalizeID trims id and validates it.
func NormalizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxIDLen || strings.ContainsFunc(id, unicode.IsSpace) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return id, nil
}

func stampAudit(e *AuditEntry) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	e.At = e.At.UTC()
}
