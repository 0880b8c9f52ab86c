package storage

import (
	"context"
	"fmt"
)

// UpsertLocationMention stores a location mention. Reprocessing the same
// message overwrites the stored fields for the same normalized key instead
// of appending a duplicate row.
func (s *Store) UpsertLocationMention(ctx context.Context, m LocationMention) error {
	query := `
	INSERT INTO locations (message_id, raw_text, normalized_text, latitude, longitude, map_url, provider, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (message_id, normalized_text) DO UPDATE SET
		raw_text = EXCLUDED.raw_text,
		latitude = EXCLUDED.latitude,
		longitude = EXCLUDED.longitude,
		map_url = EXCLUDED.map_url,
		provider = EXCLUDED.provider,
		status = EXCLUDED.status;`

	_, err := s.db.ExecContext(ctx, query,
		m.MessageID, m.RawText, m.NormalizedText,
		m.Latitude, m.Longitude, m.MapURL, m.Provider, m.Status)
	if err != nil {
		return fmt.Errorf("upsert location mention (msg %d, %q): %w", m.MessageID, m.NormalizedText, err)
	}
	return nil
}

// UpsertDangerMention stores a danger mention, overwriting on the
// (message_id, rule_id) key.
func (s *Store) UpsertDangerMention(ctx context.Context, m DangerMention) error {
	query := `
	INSERT INTO danger_mentions (message_id, snippet, rule_id, tier)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (message_id, rule_id) DO UPDATE SET
		snippet = EXCLUDED.snippet,
		tier = EXCLUDED.tier;`

	_, err := s.db.ExecContext(ctx, query, m.MessageID, m.Snippet, m.RuleID, m.Tier)
	if err != nil {
		return fmt.Errorf("upsert danger mention (msg %d, %s): %w", m.MessageID, m.RuleID, err)
	}
	return nil
}
