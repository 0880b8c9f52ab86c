package telegram

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tg-channel-parser/pkg/metrics"
)

// ChannelStore is the slice of persistence the listener pool needs: channel
// registration and the stored delivery cursor to resume from.
type ChannelStore interface {
	UpsertChannel(ctx context.Context, tgID int64, username, title string) error
	GetChannelCursor(ctx context.Context, tgID int64) (int64, error)
}

// Transport is the slice of the Telegram client the pool reads from.
// *Client implements it.
type Transport interface {
	Ready() <-chan struct{}
	ResolveChannel(ctx context.Context, identifier string) (*Channel, error)
	History(ctx context.Context, ch *Channel, minID int64, limit int) ([]RawMessage, error)
}

const maxReconnectInterval = 2 * time.Minute

func newListenerBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = maxReconnectInterval
	bo.MaxElapsedTime = 0 // retry forever
	return bo
}

// Pool runs one listener per configured channel. Each listener emits raw
// messages into the shared queue in per-channel arrival order and recovers
// from transport errors with exponential backoff. There is no cross-channel
// ordering guarantee.
type Pool struct {
	client      Transport
	store       ChannelStore
	queue       chan<- RawMessage
	identifiers []string
	poll        time.Duration
	batch       int
	log         *zap.Logger
}

func NewPool(client Transport, store ChannelStore, queue chan<- RawMessage, identifiers []string, poll time.Duration, batch int, log *zap.Logger) *Pool {
	return &Pool{
		client:      client,
		store:       store,
		queue:       queue,
		identifiers: identifiers,
		poll:        poll,
		batch:       batch,
		log:         log,
	}
}

// Run waits for authentication, resolves the configured channels and
// listens on each until ctx is cancelled. Channels that fail to resolve are
// reported once and excluded from the pool, not retried.
func (p *Pool) Run(ctx context.Context) error {
	select {
	case <-p.client.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}

	g, ctx := errgroup.WithContext(ctx)
	started := 0
	for _, ident := range p.identifiers {
		ch, err := p.client.ResolveChannel(ctx, ident)
		if err != nil {
			p.log.Error("channel failed to resolve, excluding from pool",
				zap.String("channel", ident), zap.Error(err))
			continue
		}
		// A store outage at startup is retried, not fatal.
		var cursor int64
		err = backoff.Retry(func() error {
			if err := p.store.UpsertChannel(ctx, ch.ID, ch.Username, ch.Title); err != nil {
				p.log.Warn("channel registration failed, retrying",
					zap.String("channel", ident), zap.Error(err))
				return err
			}
			c, err := p.store.GetChannelCursor(ctx, ch.ID)
			if err != nil {
				p.log.Warn("cursor lookup failed, retrying",
					zap.String("channel", ident), zap.Error(err))
				return err
			}
			cursor = c
			return nil
		}, backoff.WithContext(newListenerBackOff(), ctx))
		if err != nil {
			return err // ctx cancelled
		}
		g.Go(func() error { return p.listen(ctx, ch, cursor) })
		started++
	}
	if started == 0 {
		p.log.Warn("no channels resolved; listener pool is idle")
	}
	return g.Wait()
}

// listen polls one channel's history past the cursor and forwards new
// messages. The in-memory cursor advances on enqueue; the persisted cursor
// is advanced downstream as messages finish processing, so a restart may
// redeliver a tail of messages, which dedup absorbs.
func (p *Pool) listen(ctx context.Context, ch *Channel, cursor int64) error {
	log := p.log.With(zap.String("channel", ch.Title), zap.Int64("tg_id", ch.ID))
	log.Info("listener started", zap.Int64("cursor", cursor))

	bo := newListenerBackOff()

	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		msgs, err := p.client.History(ctx, ch, cursor, p.batch)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := bo.NextBackOff()
			metrics.ListenerReconnects.WithLabelValues(ch.Title).Inc()
			log.Warn("history fetch failed, backing off",
				zap.Duration("wait", wait), zap.Error(err))
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		bo.Reset()

		for _, m := range msgs {
			select {
			case p.queue <- m:
				if m.MessageID > cursor {
					cursor = m.MessageID
				}
				metrics.QueueDepth.Set(float64(len(p.queue)))
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
