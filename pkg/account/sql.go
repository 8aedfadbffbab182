package account

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

const sqlTimeFormat = time.RFC3339Nano

const sqlSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	client_id  TEXT PRIMARY KEY,
	id         TEXT NOT NULL,
	username   TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL DEFAULT '',
	tenant_id  TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS token_cache (
	client_id     TEXT NOT NULL,
	account_id    TEXT NOT NULL,
	scope_key     TEXT NOT NULL,
	scopes        TEXT NOT NULL,
	access_token  TEXT NOT NULL,
	token_type    TEXT NOT NULL DEFAULT '',
	expiry        TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (client_id, account_id, scope_key)
);
`

// SQLStore persists accounts and token entries in SQLite, namespaced by
// client id so several clients can share one database file.
type SQLStore struct {
	db       *sql.DB
	clientID string
}

var _ Store = (*SQLStore)(nil)

// OpenSQLite opens (and creates if needed) a SQLite database at path.
func OpenSQLite(path string) (*sql.DB, error) {
	return sql.Open("sqlite", path)
}

// NewSQLStore creates a SQLite-backed Store and bootstraps its schema.
func NewSQLStore(db *sql.DB, clientID string) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("sql store needs a database")
	}
	if clientID == "" {
		return nil, errors.New("sql store needs a client id")
	}
	if _, err := db.Exec(sqlSchema); err != nil {
		return nil, err
	}
	return &SQLStore{db: db, clientID: clientID}, nil
}

func (s *SQLStore) Upsert(ctx context.Context, account Account, entries ...Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (client_id, id, username, name, tenant_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			id = excluded.id,
			username = excluded.username,
			name = excluded.name,
			tenant_id = excluded.tenant_id,
			updated_at = excluded.updated_at`,
		s.clientID, account.ID, account.Username, account.Name, account.TenantID, now.Format(sqlTimeFormat),
	)
	if err != nil {
		return err
	}

	// single active account: cached tokens of any other account are dead
	_, err = tx.ExecContext(ctx,
		`DELETE FROM token_cache WHERE client_id = ? AND account_id != ?`,
		s.clientID, account.ID,
	)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO token_cache
			(client_id, account_id, scope_key, scopes, access_token, token_type, expiry, refresh_token)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(client_id, account_id, scope_key) DO UPDATE SET
				scopes = excluded.scopes,
				access_token = excluded.access_token,
				token_type = excluded.token_type,
				expiry = excluded.expiry,
				refresh_token = excluded.refresh_token`,
			s.clientID, account.ID, entry.Key(), entry.Scopes.String(),
			entry.AccessToken, entry.TokenType, entry.Expiry.UTC().Format(sqlTimeFormat), entry.RefreshToken,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) entries(ctx context.Context, accountID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account_id, scopes, access_token, token_type, expiry, refresh_token
		FROM token_cache WHERE client_id = ? AND account_id = ?`,
		s.clientID, accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var scopes, expiry string
		if err := rows.Scan(&entry.AccountID, &scopes, &entry.AccessToken, &entry.TokenType, &expiry, &entry.RefreshToken); err != nil {
			return nil, err
		}
		if err := entry.Scopes.UnmarshalText([]byte(scopes)); err != nil {
			return nil, err
		}
		if entry.Expiry, err = time.Parse(sqlTimeFormat, expiry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLStore) Lookup(ctx context.Context, accountID string, scopes []string) (*Entry, error) {
	entries, err := s.entries(ctx, accountID)
	if err != nil {
		return nil, err
	}
	// superset matching on normalized sets cannot be expressed in SQL,
	// filter the account's few rows here instead
	now := time.Now()
	for i := range entries {
		if entries[i].Valid(now) && entries[i].Satisfies(scopes) {
			return &entries[i], nil
		}
	}
	return nil, ErrNoEntry
}

func (s *SQLStore) RefreshTokenFor(ctx context.Context, accountID string) (string, error) {
	entries, err := s.entries(ctx, accountID)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.RefreshToken != "" {
			return entry.RefreshToken, nil
		}
	}
	return "", ErrNoEntry
}

func (s *SQLStore) ActiveAccount(ctx context.Context) (*Account, error) {
	var account Account
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, name, tenant_id FROM accounts WHERE client_id = ?`,
		s.clientID,
	).Scan(&account.ID, &account.Username, &account.Name, &account.TenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM token_cache WHERE client_id = ?`, s.clientID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE client_id = ?`, s.clientID); err != nil {
		return err
	}
	return tx.Commit()
}
