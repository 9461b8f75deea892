package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/billscan/internal/model"
)

// Pool abstracts pgxpool.Pool for testability (pgxmock satisfies it).
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool, for deployments where
// sessions must survive process restarts and be shared across replicas.
type PostgresStore struct {
	pool Pool
	ttl  time.Duration
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, ttl time.Duration) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PostgresStore{pool: pool, ttl: ttl}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	token      TEXT PRIMARY KEY,
	state      TEXT NOT NULL DEFAULT 'open',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	touched_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS page_records (
	id            BIGSERIAL PRIMARY KEY,
	session_token TEXT NOT NULL REFERENCES sessions(token) ON DELETE CASCADE,
	record        JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_page_records_session ON page_records(session_token);
CREATE INDEX IF NOT EXISTS idx_sessions_touched_at ON sessions(touched_at);
`

// Migrate creates the session tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Create(ctx context.Context) (string, error) {
	token := uuid.New().String()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (token, state) VALUES ($1, $2)`,
		token, string(model.SessionOpen),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert session")
	}
	return token, nil
}

func (s *PostgresStore) Append(ctx context.Context, token string, pages []model.PageRecord) error {
	if err := ValidateToken(token); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin append")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var state string
	err = tx.QueryRow(ctx, `SELECT state FROM sessions WHERE token = $1`, token).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUnknownSession
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: lookup session %s", token)
	}
	if state != string(model.SessionOpen) {
		return ErrSessionFinalizing
	}

	for _, page := range pages {
		raw, err := json.Marshal(page)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal page record")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO page_records (session_token, record) VALUES ($1, $2)`,
			token, raw,
		); err != nil {
			return eris.Wrap(err, "postgres: insert page record")
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE sessions SET touched_at = now() WHERE token = $1`, token,
	); err != nil {
		return eris.Wrap(err, "postgres: touch session")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit append")
}

func (s *PostgresStore) ReadAll(ctx context.Context, token string) ([]model.PageRecord, error) {
	if err := ValidateToken(token); err != nil {
		return nil, err
	}

	var exists int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM sessions WHERE token = $1`, token).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownSession
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: lookup session %s", token)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT record FROM page_records WHERE session_token = $1 ORDER BY id`, token)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query page records")
	}
	defer rows.Close()

	var pages []model.PageRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan page record")
		}
		var page model.PageRecord
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal page record")
		}
		pages = append(pages, page)
	}
	return pages, eris.Wrap(rows.Err(), "postgres: iterate page records")
}

func (s *PostgresStore) Finalize(ctx context.Context, token string) error {
	if err := ValidateToken(token); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET state = $1 WHERE token = $2`,
		string(model.SessionFinalizing), token,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finalize session %s", token)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownSession
	}
	return nil
}

func (s *PostgresStore) Destroy(ctx context.Context, token string) error {
	if err := ValidateToken(token); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return eris.Wrapf(err, "postgres: destroy session %s", token)
}

func (s *PostgresStore) List(ctx context.Context) ([]model.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT token, state, created_at FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var sess model.Session
		var state string
		if err := rows.Scan(&sess.Token, &state, &sess.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		sess.State = model.SessionState(state)
		out = append(out, sess)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate sessions")
}

func (s *PostgresStore) DeleteExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.ttl)

	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE touched_at <= $1`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired sessions")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
