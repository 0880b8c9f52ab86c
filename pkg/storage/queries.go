package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by single-record lookups when no row matches.
var ErrNotFound = errors.New("storage: not found")

// MessageFilter narrows ListMessages results. Nil fields are ignored.
type MessageFilter struct {
	ChannelID   *int64
	HasLocation *bool
	HasDanger   *bool
	DateFrom    *time.Time
	DateTo      *time.Time
	Limit       int
	Offset      int
}

// ListChannels returns all stored channels ordered by title.
func (s *Store) ListChannels(ctx context.Context) ([]Channel, error) {
	var out []Channel
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM channels ORDER BY title, id`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return out, nil
}

// GetChannel returns one channel by row id.
func (s *Store) GetChannel(ctx context.Context, id int64) (*Channel, error) {
	var ch Channel
	err := s.db.GetContext(ctx, &ch, `SELECT * FROM channels WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get channel %d: %w", id, err)
	}
	return &ch, nil
}

// ListMessages returns messages matching the filter, newest first.
func (s *Store) ListMessages(ctx context.Context, f MessageFilter) ([]Message, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ChannelID != nil {
		add("channel_id = $%d", *f.ChannelID)
	}
	if f.HasLocation != nil {
		add("has_location = $%d", *f.HasLocation)
	}
	if f.HasDanger != nil {
		add("has_danger = $%d", *f.HasDanger)
	}
	if f.DateFrom != nil {
		add("posted_at >= $%d", *f.DateFrom)
	}
	if f.DateTo != nil {
		add("posted_at <= $%d", *f.DateTo)
	}

	query := `SELECT * FROM messages`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY posted_at DESC, id DESC LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	var out []Message
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}

// GetMessage returns one message by row id.
func (s *Store) GetMessage(ctx context.Context, id int64) (*Message, error) {
	var m Message
	err := s.db.GetContext(ctx, &m, `SELECT * FROM messages WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message %d: %w", id, err)
	}
	return &m, nil
}

// ListLocations returns location mentions, optionally for one message.
func (s *Store) ListLocations(ctx context.Context, messageID *int64, limit, offset int) ([]LocationMention, error) {
	query := `SELECT * FROM locations`
	args := []interface{}{}
	if messageID != nil {
		query += ` WHERE message_id = $1`
		args = append(args, *messageID)
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	var out []LocationMention
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return out, nil
}

// ListDangerMentions returns danger mentions, optionally for one message or
// one confidence tier.
func (s *Store) ListDangerMentions(ctx context.Context, messageID *int64, tier string, limit, offset int) ([]DangerMention, error) {
	var (
		conds []string
		args  []interface{}
	)
	if messageID != nil {
		args = append(args, *messageID)
		conds = append(conds, fmt.Sprintf("message_id = $%d", len(args)))
	}
	if tier != "" {
		args = append(args, tier)
		conds = append(conds, fmt.Sprintf("tier = $%d", len(args)))
	}

	query := `SELECT * FROM danger_mentions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	var out []DangerMention
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list danger mentions: %w", err)
	}
	return out, nil
}

// GetStats aggregates record counts, optionally for one channel.
func (s *Store) GetStats(ctx context.Context, channelID *int64) (*Stats, error) {
	query := `
	SELECT
		count(*) AS total_messages,
		count(*) FILTER (WHERE has_location) AS messages_with_location,
		count(*) FILTER (WHERE has_danger) AS messages_with_danger,
		(SELECT count(*) FROM locations l JOIN messages lm ON lm.id = l.message_id
			WHERE $1::bigint IS NULL OR lm.channel_id = $1) AS total_locations,
		(SELECT count(*) FROM danger_mentions d JOIN messages dm ON dm.id = d.message_id
			WHERE $1::bigint IS NULL OR dm.channel_id = $1) AS total_danger_mentions
	FROM messages
	WHERE $1::bigint IS NULL OR channel_id = $1;`

	var st Stats
	if err := s.db.GetContext(ctx, &st, query, channelID); err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return &st, nil
}
