package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	logx "castbot/pkg/logx"
)

type postgresStore struct {
	pool atomic.Pointer[pgxpool.Pool]
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	st := &postgresStore{log: log}
	st.pool.Store(pool)
	if err := st.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return st, nil
}

func (s *postgresStore) migrate(ctx context.Context) error {
	stmts, err := migrationStatements("postgres.sql")
	if err != nil {
		return err
	}
	pool := s.pool.Load()
	for _, q := range stmts {
		if _, err := pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}

func (s *postgresStore) Close() error {
	if pool := s.pool.Swap(nil); pool != nil {
		pool.Close()
	}
	return nil
}

func (s *postgresStore) AddSubscriber(ctx context.Context, id string) (bool, error) {
	pool := s.pool.Load()
	if pool == nil {
		return false, ErrDisabled
	}
	id, err := NormalizeID(id)
	if err != nil {
		return false, err
	}
	tag, err := pool.Exec(ctx, `INSERT INTO subscribers(id) VALUES($1) ON CONFLICT (id) DO NOTHING`, id)
	if err != nil {
		return false, fmt.Errorf("add subscriber: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *postgresStore) RemoveSubscriber(ctx context.Context, id string) (bool, error) {
	pool := s.pool.Load()
	if pool == nil {
		return false, ErrDisabled
	}
	id, err := NormalizeID(id)
	if err != nil {
		return false, err
	}
	tag, err := pool.Exec(ctx, `DELETE FROM subscribers WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("remove subscriber: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *postgresStore) ListSubscribers(ctx context.Context) ([]string, error) {
	pool := s.pool.Load()
	if pool == nil {
		return nil, ErrDisabled
	}
	rows, err := pool.Query(ctx, `SELECT id FROM subscribers ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	return ids, nil
}

func (s *postgresStore) CountSubscribers(ctx context.Context) (int, error) {
	pool := s.pool.Load()
	if pool == nil {
		return 0, ErrDisabled
	}
	var n int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM subscribers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count subscribers: %w", err)
	}
	return n, nil
}

func (s *postgresStore) HasSubscriber(ctx context.Context, id string) (bool, error) {
	pool := s.pool.Load()
	if pool == nil {
		return false, ErrDisabled
	}
	id, err := NormalizeID(id)
	if err != nil {
		return false, err
	}
	var exists bool
	err = pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM subscribers WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *postgresStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	pool := s.pool.Load()
	if pool == nil {
		return ErrDisabled
	}
	stampAudit(&e)
	_, err := pool.Exec(ctx,
		`INSERT INTO audit(at, actor_id, actor_username, chat_id, action, target, ok, fail, err, took_ms, meta)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.At, e.ActorID, nullStr(e.ActorUsername), e.ChatID,
		e.Action, nullStr(e.Target), e.OK, e.Fail, nullStr(e.Error), e.TookMS, nullStr(e.MetaJSON),
	)
	return err
}
