package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS credentials (
	profile    TEXT NOT NULL,
	name       TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (profile, name)
);`

// SQLiteStore keeps the credential in a local SQLite database.
type SQLiteStore struct {
	db      *sql.DB
	profile string
	logger  *zap.Logger
}

// OpenSQLiteStore opens (and if needed creates) the database at dsn.
func OpenSQLiteStore(dsn, profile string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create credentials table: %w", err)
	}

	return &SQLiteStore{db: db, profile: profile, logger: logger}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Get() (Credential, bool) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT name, value FROM credentials WHERE profile = ?`, s.profile)
	if err != nil {
		s.logger.Warn("sqlite session read failed, treating as logged out", zap.Error(err))
		return Credential{}, false
	}
	defer rows.Close()

	var c Credential
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			s.logger.Warn("sqlite session scan failed", zap.Error(err))
			return Credential{}, false
		}
		switch name {
		case KeyAccessToken:
			c.AccessToken = value
		case KeyRefreshToken:
			c.RefreshToken = value
		}
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("sqlite session read failed, treating as logged out", zap.Error(err))
		return Credential{}, false
	}
	return c, !c.IsZero()
}

func (s *SQLiteStore) SetAccess(token string) error {
	return s.set(KeyAccessToken, token)
}

func (s *SQLiteStore) SetRefresh(token string) error {
	return s.set(KeyRefreshToken, token)
}

func (s *SQLiteStore) set(name, value string) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO credentials (profile, name, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (profile, name) DO UPDATE
		SET value = excluded.value, updated_at = excluded.updated_at`,
		s.profile, name, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlite set %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) Clear() error {
	if _, err := s.db.ExecContext(context.Background(),
		`DELETE FROM credentials WHERE profile = ?`, s.profile); err != nil {
		return fmt.Errorf("sqlite clear session: %w", err)
	}
	return nil
}
