package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertChannel inserts a channel or refreshes its title/username. The
// cursor is never touched here; see AdvanceChannelCursor.
func (s *Store) UpsertChannel(ctx context.Context, tgID int64, username, title string) error {
	query := `
	INSERT INTO channels (tg_id, username, title, enabled)
	VALUES ($1, NULLIF($2, ''), $3, TRUE)
	ON CONFLICT (tg_id) DO UPDATE SET
		username = EXCLUDED.username,
		title = EXCLUDED.title,
		updated_at = now();`

	if _, err := s.db.ExecContext(ctx, query, tgID, username, title); err != nil {
		return fmt.Errorf("upsert channel %d: %w", tgID, err)
	}
	return nil
}

// GetChannelCursor returns the stored delivery cursor for a channel, or 0
// when the channel is unknown.
func (s *Store) GetChannelCursor(ctx context.Context, tgID int64) (int64, error) {
	var cursor int64
	err := s.db.GetContext(ctx, &cursor,
		`SELECT last_message_id FROM channels WHERE tg_id = $1`, tgID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get channel cursor %d: %w", tgID, err)
	}
	return cursor, nil
}

// AdvanceChannelCursor moves the delivery cursor forward, never backward, so
// redelivered older messages cannot rewind it.
func (s *Store) AdvanceChannelCursor(ctx context.Context, tgID, messageID int64) error {
	query := `
	UPDATE channels
	SET last_message_id = GREATEST(last_message_id, $2), updated_at = now()
	WHERE tg_id = $1;`

	if _, err := s.db.ExecContext(ctx, query, tgID, messageID); err != nil {
		return fmt.Errorf("advance channel cursor %d: %w", tgID, err)
	}
	return nil
}
