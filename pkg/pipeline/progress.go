package pipeline

import "sync"

// channelProgress tracks which message ids of one channel are being worked
// on and the highest id that reached a terminal status.
type channelProgress struct {
	inFlight map[int64]struct{}
	maxDone  int64
}

// progressTracker gates cursor persistence. Workers dequeue a channel's
// messages in listener order, so once an id is registered here every earlier
// id of that channel is either terminal or also registered. The persisted
// cursor may therefore only move to maxDone when no registered id lags
// behind it; otherwise a crash would leave the skipped id before the cursor,
// never to be redelivered.
type progressTracker struct {
	mu       sync.Mutex
	channels map[int64]*channelProgress
}

func newProgressTracker() *progressTracker {
	return &progressTracker{channels: make(map[int64]*channelProgress)}
}

// begin registers a dequeued message as in flight.
func (t *progressTracker) begin(channelID, messageID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.channels[channelID]
	if !ok {
		p = &channelProgress{inFlight: make(map[int64]struct{})}
		t.channels[channelID] = p
	}
	p.inFlight[messageID] = struct{}{}
}

// done marks a message terminal and returns the cursor value that is now
// safe to persist, or 0 while an earlier message of the channel is still in
// flight. The deferred advance happens when that straggler finishes.
func (t *progressTracker) done(channelID, messageID int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.channels[channelID]
	if !ok {
		return 0
	}
	delete(p.inFlight, messageID)
	if messageID > p.maxDone {
		p.maxDone = messageID
	}
	for id := range p.inFlight {
		if id < p.maxDone {
			return 0
		}
	}
	return p.maxDone
}
