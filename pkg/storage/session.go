package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gotd/td/session"
)

// sessionID is the key of the single process-wide auth session row.
const sessionID = "default"

// SessionStore persists the Telegram session blob and the active identity
// kind in the auth_sessions table. It implements gotd's session.Storage so a
// successful login survives restarts.
type SessionStore struct {
	db *Store
}

// Session returns the session storage backed by this store.
func (s *Store) Session() *SessionStore {
	return &SessionStore{db: s}
}

// LoadSession implements session.Storage.
func (s *SessionStore) LoadSession(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.db.db.GetContext(ctx, &data,
		`SELECT data FROM auth_sessions WHERE id = $1`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(data) == 0 {
		return nil, session.ErrNotFound
	}
	return data, nil
}

// StoreSession implements session.Storage.
func (s *SessionStore) StoreSession(ctx context.Context, data []byte) error {
	query := `
	INSERT INTO auth_sessions (id, data)
	VALUES ($1, $2)
	ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now();`

	if _, err := s.db.db.ExecContext(ctx, query, sessionID, data); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// SetIdentityKind records which authentication path the stored session
// belongs to ("user" or "bot").
func (s *SessionStore) SetIdentityKind(ctx context.Context, kind string) error {
	query := `
	INSERT INTO auth_sessions (id, kind)
	VALUES ($1, $2)
	ON CONFLICT (id) DO UPDATE SET kind = EXCLUDED.kind, updated_at = now();`

	if _, err := s.db.db.ExecContext(ctx, query, sessionID, kind); err != nil {
		return fmt.Errorf("set identity kind: %w", err)
	}
	return nil
}

// IdentityKind returns the identity kind of the stored session, if any.
func (s *SessionStore) IdentityKind(ctx context.Context) (string, error) {
	var kind sql.NullString
	err := s.db.db.GetContext(ctx, &kind,
		`SELECT kind FROM auth_sessions WHERE id = $1`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get identity kind: %w", err)
	}
	return kind.String, nil
}
