package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetMessageStatus looks up the processing status of a message by its
// dedup key. found is false when the message has never been stored.
func (s *Store) GetMessageStatus(ctx context.Context, tgChannelID, tgMessageID int64) (status MessageStatus, found bool, err error) {
	query := `
	SELECT m.status FROM messages m
	JOIN channels c ON c.id = m.channel_id
	WHERE c.tg_id = $1 AND m.tg_message_id = $2;`

	err = s.db.GetContext(ctx, &status, query, tgChannelID, tgMessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get message status (%d, %d): %w", tgChannelID, tgMessageID, err)
	}
	return status, true, nil
}

// UpsertMessage stores a raw message as pending and returns its row id. The
// upsert is atomic on (channel_id, tg_message_id): redelivery updates the
// row in place. A message already marked processed keeps its status; the
// dedup check upstream skips those anyway.
func (s *Store) UpsertMessage(ctx context.Context, tgChannelID, tgMessageID int64, text string, postedAt time.Time) (int64, error) {
	query := `
	INSERT INTO messages (channel_id, tg_message_id, text, posted_at, status)
	SELECT c.id, $2, $3, $4, $5 FROM channels c WHERE c.tg_id = $1
	ON CONFLICT (channel_id, tg_message_id) DO UPDATE SET
		text = EXCLUDED.text,
		posted_at = EXCLUDED.posted_at,
		status = CASE WHEN messages.status = 'processed' THEN messages.status ELSE EXCLUDED.status END,
		updated_at = now()
	RETURNING id;`

	var id int64
	err := s.db.GetContext(ctx, &id, query, tgChannelID, tgMessageID, text, postedAt, MessageStatusPending)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("upsert message (%d, %d): channel not stored", tgChannelID, tgMessageID)
	}
	if err != nil {
		return 0, fmt.Errorf("upsert message (%d, %d): %w", tgChannelID, tgMessageID, err)
	}
	return id, nil
}

// FinalizeMessage records the terminal status of a processed message along
// with its extraction summary flags.
func (s *Store) FinalizeMessage(ctx context.Context, messageID int64, status MessageStatus, hasLocation, hasDanger bool) error {
	query := `
	UPDATE messages
	SET status = $2, has_location = $3, has_danger = $4, updated_at = now()
	WHERE id = $1;`

	if _, err := s.db.ExecContext(ctx, query, messageID, status, hasLocation, hasDanger); err != nil {
		return fmt.Errorf("finalize message %d: %w", messageID, err)
	}
	return nil
}
