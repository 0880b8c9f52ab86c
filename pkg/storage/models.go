package storage

import (
	"database/sql"
	"time"
)

// MessageStatus is the processing state of a stored message.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusProcessed MessageStatus = "processed"
	MessageStatusFailed    MessageStatus = "failed"
)

// Channel is a monitored Telegram channel. LastMessageID is the delivery
// cursor, advanced only as messages finish processing.
type Channel struct {
	ID            int64          `db:"id" json:"id"`
	TgID          int64          `db:"tg_id" json:"tg_id"`
	Username      sql.NullString `db:"username" json:"username"`
	Title         string         `db:"title" json:"title"`
	Enabled       bool           `db:"enabled" json:"enabled"`
	LastMessageID int64          `db:"last_message_id" json:"last_message_id"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// Message is a raw channel message. (channel_id, tg_message_id) is unique:
// redelivery of the same pair upserts rather than duplicating.
type Message struct {
	ID          int64         `db:"id" json:"id"`
	ChannelID   int64         `db:"channel_id" json:"channel_id"`
	TgMessageID int64         `db:"tg_message_id" json:"tg_message_id"`
	Text        string        `db:"text" json:"text"`
	PostedAt    time.Time     `db:"posted_at" json:"posted_at"`
	Status      MessageStatus `db:"status" json:"status"`
	HasLocation bool          `db:"has_location" json:"has_location"`
	HasDanger   bool          `db:"has_danger" json:"has_danger"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// LocationMention is an extracted location, possibly geocoded.
type LocationMention struct {
	ID             int64           `db:"id" json:"id"`
	MessageID      int64           `db:"message_id" json:"message_id"`
	RawText        string          `db:"raw_text" json:"raw_text"`
	NormalizedText string          `db:"normalized_text" json:"normalized_text"`
	Latitude       sql.NullFloat64 `db:"latitude" json:"latitude"`
	Longitude      sql.NullFloat64 `db:"longitude" json:"longitude"`
	MapURL         sql.NullString  `db:"map_url" json:"map_url"`
	Provider       sql.NullString  `db:"provider" json:"provider"`
	Status         string          `db:"status" json:"status"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// DangerMention is a danger indicator matched by a lexicon rule.
type DangerMention struct {
	ID        int64     `db:"id" json:"id"`
	MessageID int64     `db:"message_id" json:"message_id"`
	Snippet   string    `db:"snippet" json:"snippet"`
	RuleID    string    `db:"rule_id" json:"rule_id"`
	Tier      string    `db:"tier" json:"tier"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Stats aggregates stored record counts for the query API.
type Stats struct {
	TotalMessages        int64 `db:"total_messages" json:"total_messages"`
	MessagesWithLocation int64 `db:"messages_with_location" json:"messages_with_location"`
	MessagesWithDanger   int64 `db:"messages_with_danger" json:"messages_with_danger"`
	TotalLocations       int64 `db:"total_locations" json:"total_locations"`
	TotalDangerMentions  int64 `db:"total_danger_mentions" json:"total_danger_mentions"`
}
