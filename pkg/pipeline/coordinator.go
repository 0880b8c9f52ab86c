package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"tg-channel-parser/pkg/extract"
	"tg-channel-parser/pkg/geocode"
	"tg-channel-parser/pkg/metrics"
	"tg-channel-parser/pkg/storage"
	"tg-channel-parser/pkg/telegram"
)

// Store is the persistence port the coordinator writes through. All upserts
// must be atomic insert-or-update operations.
type Store interface {
	GetMessageStatus(ctx context.Context, tgChannelID, tgMessageID int64) (storage.MessageStatus, bool, error)
	UpsertMessage(ctx context.Context, tgChannelID, tgMessageID int64, text string, postedAt time.Time) (int64, error)
	UpsertLocationMention(ctx context.Context, m storage.LocationMention) error
	UpsertDangerMention(ctx context.Context, m storage.DangerMention) error
	FinalizeMessage(ctx context.Context, messageID int64, status storage.MessageStatus, hasLocation, hasDanger bool) error
	AdvanceChannelCursor(ctx context.Context, tgChannelID, messageID int64) error
}

// Extractor finds location and danger candidates in message text.
type Extractor interface {
	Extract(text string) ([]extract.LocationCandidate, []extract.DangerCandidate)
}

// Resolver geocodes a location candidate.
type Resolver interface {
	Resolve(ctx context.Context, cand extract.LocationCandidate) geocode.Resolved
}

const maxPersistenceBackoff = 30 * time.Second

// Coordinator consumes raw messages from the shared queue with a fixed pool
// of workers: dedup by (channel id, message id), extract, geocode, persist.
// Messages from different channels are processed concurrently; a failure on
// one message never affects another.
type Coordinator struct {
	queue     <-chan telegram.RawMessage
	store     Store
	extractor Extractor
	resolver  Resolver
	workers   int
	progress  *progressTracker
	log       *zap.Logger
}

func New(queue <-chan telegram.RawMessage, store Store, extractor Extractor, resolver Resolver, workers int, log *zap.Logger) *Coordinator {
	return &Coordinator{
		queue:     queue,
		store:     store,
		extractor: extractor,
		resolver:  resolver,
		workers:   workers,
		progress:  newProgressTracker(),
		log:       log,
	}
}

// Run processes queued messages until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.worker(ctx, c.log.With(zap.Int("worker", id)))
		}(i)
	}
	wg.Wait()
	return ctx.Err()
}

func (c *Coordinator) worker(ctx context.Context, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-c.queue:
			metrics.QueueDepth.Set(float64(len(c.queue)))
			c.handle(ctx, log, m)
		}
	}
}

// handle runs one message to a terminal status and persists the channel
// cursor once no earlier message of the channel is still in flight, so a
// crash never leaves an unprocessed message behind the stored cursor.
func (c *Coordinator) handle(ctx context.Context, log *zap.Logger, m telegram.RawMessage) {
	c.progress.begin(m.ChannelID, m.MessageID)
	if !c.process(ctx, log, m) {
		return
	}
	if safe := c.progress.done(m.ChannelID, m.MessageID); safe > 0 {
		if err := c.store.AdvanceChannelCursor(ctx, m.ChannelID, safe); err != nil {
			// Cursor lag only widens redelivery after restart; dedup covers it.
			log.Warn("failed to advance channel cursor", zap.Error(err))
		}
	}
}

// process runs extraction and persistence for one message. It reports
// whether the message reached a terminal status; false means shutdown
// interrupted it.
func (c *Coordinator) process(ctx context.Context, log *zap.Logger, m telegram.RawMessage) bool {
	log = log.With(zap.Int64("tg_channel_id", m.ChannelID), zap.Int64("tg_message_id", m.MessageID))

	var (
		status storage.MessageStatus
		found  bool
	)
	err := c.persistRetry(ctx, func() error {
		var err error
		status, found, err = c.store.GetMessageStatus(ctx, m.ChannelID, m.MessageID)
		return err
	})
	if err != nil {
		return false // shutting down
	}
	if found && status == storage.MessageStatusProcessed {
		metrics.MessagesProcessed.WithLabelValues("skipped").Inc()
		return true
	}

	var msgID int64
	err = c.persistRetry(ctx, func() error {
		var err error
		msgID, err = c.store.UpsertMessage(ctx, m.ChannelID, m.MessageID, m.Text, m.PostedAt)
		return err
	})
	if err != nil {
		return false
	}

	locCands, dangerCands, extractErr := c.safeExtract(m.Text)
	final := storage.MessageStatusProcessed
	if extractErr != nil {
		log.Error("extraction failed", zap.Error(extractErr))
		final = storage.MessageStatusFailed
	}

	for _, cand := range locCands {
		res := c.resolver.Resolve(ctx, cand)
		if err := c.store.UpsertLocationMention(ctx, locationRow(msgID, res)); err != nil {
			log.Error("failed to persist location mention",
				zap.String("location", res.Normalized), zap.Error(err))
			final = storage.MessageStatusFailed
			continue
		}
		metrics.LocationsExtracted.WithLabelValues(string(res.Status)).Inc()
	}

	for _, d := range dangerCands {
		row := storage.DangerMention{MessageID: msgID, Snippet: d.Snippet, RuleID: d.RuleID, Tier: string(d.Tier)}
		if err := c.store.UpsertDangerMention(ctx, row); err != nil {
			log.Error("failed to persist danger mention",
				zap.String("rule", d.RuleID), zap.Error(err))
			final = storage.MessageStatusFailed
			continue
		}
		metrics.DangerExtracted.WithLabelValues(string(d.Tier)).Inc()
	}

	if err := c.persistRetry(ctx, func() error {
		return c.store.FinalizeMessage(ctx, msgID, final, len(locCands) > 0, len(dangerCands) > 0)
	}); err != nil {
		return false
	}

	metrics.MessagesProcessed.WithLabelValues(string(final)).Inc()
	log.Debug("message processed",
		zap.String("status", string(final)),
		zap.Int("locations", len(locCands)),
		zap.Int("danger_mentions", len(dangerCands)))
	return true
}

// safeExtract shields the pipeline from extraction faults on malformed
// input: the message is marked failed and processing continues.
func (c *Coordinator) safeExtract(text string) (locs []extract.LocationCandidate, danger []extract.DangerCandidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			locs, danger = nil, nil
			err = fmt.Errorf("extraction panic: %v", r)
		}
	}()
	locs, danger = c.extractor.Extract(text)
	return locs, danger, nil
}

// persistRetry retries op with exponential backoff until it succeeds or ctx
// ends. A retrying worker holds its queue slot, so the bounded queue fills
// and listeners stop enqueueing: consumption pauses instead of messages
// being dropped while storage is unavailable.
func (c *Coordinator) persistRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = maxPersistenceBackoff
	bo.MaxElapsedTime = 0
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

func locationRow(msgID int64, res geocode.Resolved) storage.LocationMention {
	row := storage.LocationMention{
		MessageID:      msgID,
		RawText:        res.Raw,
		NormalizedText: res.Normalized,
		Status:         string(res.Status),
		Provider:       sql.NullString{String: res.Provider, Valid: res.Provider != ""},
	}
	if res.Status != geocode.StatusUnresolved {
		row.Latitude = sql.NullFloat64{Float64: res.Lat, Valid: true}
		row.Longitude = sql.NullFloat64{Float64: res.Lng, Valid: true}
		row.MapURL = sql.NullString{String: res.MapURL, Valid: res.MapURL != ""}
	}
	return row
}
