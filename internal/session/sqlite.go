package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/billscan/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Page records are
// stored one row each, keyed by arrival order, so a concurrent append is an
// atomic insert rather than a read-modify-write of the whole collection.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. A non-positive TTL falls back to DefaultTTL.
func NewSQLite(dsn string, ttl time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SQLiteStore{db: db, ttl: ttl}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	token      TEXT PRIMARY KEY,
	state      TEXT NOT NULL DEFAULT 'open',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	touched_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS page_records (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_token TEXT NOT NULL REFERENCES sessions(token) ON DELETE CASCADE,
	record        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_page_records_session ON page_records(session_token);
CREATE INDEX IF NOT EXISTS idx_sessions_touched_at ON sessions(touched_at);
`

// Migrate creates the session tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Create(ctx context.Context) (string, error) {
	token := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, state, created_at, touched_at) VALUES (?, ?, ?, ?)`,
		token, string(model.SessionOpen), now, now,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert session")
	}
	return token, nil
}

func (s *SQLiteStore) Append(ctx context.Context, token string, pages []model.PageRecord) error {
	if err := ValidateToken(token); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append")
	}
	defer tx.Rollback() //nolint:errcheck

	var state string
	err = tx.QueryRowContext(ctx, `SELECT state FROM sessions WHERE token = ?`, token).Scan(&state)
	if err == sql.ErrNoRows {
		return ErrUnknownSession
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: lookup session %s", token)
	}
	if state != string(model.SessionOpen) {
		return ErrSessionFinalizing
	}

	for _, page := range pages {
		raw, err := json.Marshal(page)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal page record")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO page_records (session_token, record) VALUES (?, ?)`,
			token, string(raw),
		); err != nil {
			return eris.Wrap(err, "sqlite: insert page record")
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET touched_at = ? WHERE token = ?`,
		time.Now().UTC(), token,
	); err != nil {
		return eris.Wrap(err, "sqlite: touch session")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit append")
}

func (s *SQLiteStore) ReadAll(ctx context.Context, token string) ([]model.PageRecord, error) {
	if err := ValidateToken(token); err != nil {
		return nil, err
	}

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE token = ?`, token).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ErrUnknownSession
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: lookup session %s", token)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM page_records WHERE session_token = ? ORDER BY id`, token)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query page records")
	}
	defer rows.Close() //nolint:errcheck

	var pages []model.PageRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan page record")
		}
		var page model.PageRecord
		if err := json.Unmarshal([]byte(raw), &page); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal page record")
		}
		pages = append(pages, page)
	}
	return pages, eris.Wrap(rows.Err(), "sqlite: iterate page records")
}

func (s *SQLiteStore) Finalize(ctx context.Context, token string) error {
	if err := ValidateToken(token); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET state = ? WHERE token = ?`,
		string(model.SessionFinalizing), token,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finalize session %s", token)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: finalize rows affected")
	}
	if n == 0 {
		return ErrUnknownSession
	}
	return nil
}

func (s *SQLiteStore) Destroy(ctx context.Context, token string) error {
	if err := ValidateToken(token); err != nil {
		return err
	}

	// CASCADE removes the page records; deleting a missing token is a no-op.
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return eris.Wrapf(err, "sqlite: destroy session %s", token)
}

func (s *SQLiteStore) List(ctx context.Context) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token, state, created_at FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Session
	for rows.Next() {
		var sess model.Session
		var state string
		if err := rows.Scan(&sess.Token, &state, &sess.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		sess.State = model.SessionState(state)
		out = append(out, sess)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate sessions")
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.ttl)

	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE touched_at <= ?`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired sessions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: expired rows affected")
	}
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
