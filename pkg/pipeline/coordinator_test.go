package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"tg-channel-parser/pkg/extract"
	"tg-channel-parser/pkg/geocode"
	"tg-channel-parser/pkg/storage"
	"tg-channel-parser/pkg/telegram"
)

type msgKey struct {
	tgChannelID int64
	tgMessageID int64
}

type storedMessage struct {
	id          int64
	status      storage.MessageStatus
	hasLocation bool
	hasDanger   bool
}

// memStore is an in-memory pipeline.Store with the same upsert semantics as
// the Postgres implementation.
type memStore struct {
	mu          sync.Mutex
	nextID      int64
	inserted    int
	messages    map[msgKey]*storedMessage
	byID        map[int64]*storedMessage
	locations   map[int64]map[string]storage.LocationMention
	danger      map[int64]map[string]storage.DangerMention
	cursors     map[int64]int64
	locationErr error
}

func newMemStore() *memStore {
	return &memStore{
		messages:  make(map[msgKey]*storedMessage),
		byID:      make(map[int64]*storedMessage),
		locations: make(map[int64]map[string]storage.LocationMention),
		danger:    make(map[int64]map[string]storage.DangerMention),
		cursors:   make(map[int64]int64),
	}
}

func (s *memStore) GetMessageStatus(_ context.Context, tgChannelID, tgMessageID int64) (storage.MessageStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[msgKey{tgChannelID, tgMessageID}]
	if !ok {
		return "", false, nil
	}
	return m.status, true, nil
}

func (s *memStore) UpsertMessage(_ context.Context, tgChannelID, tgMessageID int64, _ string, _ time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := msgKey{tgChannelID, tgMessageID}
	if m, ok := s.messages[key]; ok {
		if m.status != storage.MessageStatusProcessed {
			m.status = storage.MessageStatusPending
		}
		return m.id, nil
	}
	s.nextID++
	s.inserted++
	m := &storedMessage{id: s.nextID, status: storage.MessageStatusPending}
	s.messages[key] = m
	s.byID[m.id] = m
	return m.id, nil
}

func (s *memStore) UpsertChannel(context.Context, int64, string, string) error { return nil }

func (s *memStore) GetChannelCursor(_ context.Context, tgID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[tgID], nil
}

func (s *memStore) UpsertLocationMention(_ context.Context, m storage.LocationMention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locationErr != nil {
		return s.locationErr
	}
	if s.locations[m.MessageID] == nil {
		s.locations[m.MessageID] = make(map[string]storage.LocationMention)
	}
	s.locations[m.MessageID][m.NormalizedText] = m
	return nil
}

func (s *memStore) UpsertDangerMention(_ context.Context, m storage.DangerMention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.danger[m.MessageID] == nil {
		s.danger[m.MessageID] = make(map[string]storage.DangerMention)
	}
	s.danger[m.MessageID][m.RuleID] = m
	return nil
}

func (s *memStore) FinalizeMessage(_ context.Context, messageID int64, status storage.MessageStatus, hasLocation, hasDanger bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[messageID]
	if !ok {
		return errors.New("unknown message")
	}
	m.status = status
	m.hasLocation = hasLocation
	m.hasDanger = hasDanger
	return nil
}

func (s *memStore) AdvanceChannelCursor(_ context.Context, tgChannelID, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if messageID > s.cursors[tgChannelID] {
		s.cursors[tgChannelID] = messageID
	}
	return nil
}

func (s *memStore) message(tgChannelID, tgMessageID int64) *storedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[msgKey{tgChannelID, tgMessageID}]
}

func (s *memStore) statusOf(tgChannelID, tgMessageID int64) storage.MessageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[msgKey{tgChannelID, tgMessageID}]
	if !ok {
		return ""
	}
	return m.status
}

func (s *memStore) insertedRows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserted
}

func (s *memStore) cursor(tgChannelID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[tgChannelID]
}

// fakeResolver resolves every candidate to a fixed point and counts calls.
type fakeResolver struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeResolver) Resolve(_ context.Context, c extract.LocationCandidate) geocode.Resolved {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return geocode.Resolved{
		Raw:        c.Raw,
		Normalized: c.Normalized,
		Lat:        50.45,
		Lng:        30.52,
		Provider:   "fake",
		Status:     geocode.StatusResolved,
		MapURL:     "https://maps.example/50.45,30.52",
	}
}

func (f *fakeResolver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestCoordinator(store Store, resolver Resolver) *Coordinator {
	return New(nil, store, extract.New(), resolver, 1, zap.NewNop())
}

func TestProcessStoresMentionsAndAdvancesCursor(t *testing.T) {
	store := newMemStore()
	resolver := &fakeResolver{}
	c := newTestCoordinator(store, resolver)

	c.handle(context.Background(), zap.NewNop(), telegram.RawMessage{
		ChannelID: 100,
		MessageID: 7,
		Text:      "Загроза поблизу вул. Хрещатик, Київ",
		PostedAt:  time.Now(),
	})

	m := store.message(100, 7)
	if m == nil {
		t.Fatal("message not stored")
	}
	if m.status != storage.MessageStatusProcessed {
		t.Errorf("got status %q, want processed", m.status)
	}
	if !m.hasLocation || !m.hasDanger {
		t.Errorf("got hasLocation=%v hasDanger=%v, want both true", m.hasLocation, m.hasDanger)
	}

	locs := store.locations[m.id]
	if len(locs) != 1 {
		t.Fatalf("got %d location mentions, want 1: %v", len(locs), locs)
	}
	loc, ok := locs["vul khreshchatyk kyiv"]
	if !ok {
		t.Fatalf("location mention keyed wrong: %v", locs)
	}
	if loc.RawText != "вул. Хрещатик, Київ" {
		t.Errorf("got raw %q, want %q", loc.RawText, "вул. Хрещатик, Київ")
	}
	if loc.Status != string(geocode.StatusResolved) || !loc.Latitude.Valid || !loc.MapURL.Valid {
		t.Errorf("resolved mention missing fields: %+v", loc)
	}

	danger := store.danger[m.id]
	if len(danger) != 1 {
		t.Fatalf("got %d danger mentions, want 1: %v", len(danger), danger)
	}
	if d, ok := danger["threat"]; !ok || d.Tier != "low" {
		t.Errorf("got %+v, want low-tier threat mention", d)
	}

	if store.cursors[100] != 7 {
		t.Errorf("got cursor %d, want 7", store.cursors[100])
	}
}

func TestProcessSkipsProcessedMessage(t *testing.T) {
	store := newMemStore()
	resolver := &fakeResolver{}
	c := newTestCoordinator(store, resolver)
	msg := telegram.RawMessage{ChannelID: 100, MessageID: 7, Text: "Вибух у Київ", PostedAt: time.Now()}

	c.handle(context.Background(), zap.NewNop(), msg)
	callsAfterFirst := resolver.callCount()
	c.handle(context.Background(), zap.NewNop(), msg)

	if resolver.callCount() != callsAfterFirst {
		t.Error("redelivered processed message was geocoded again")
	}
	if len(store.locations) != 1 {
		t.Errorf("got %d message location sets, want 1", len(store.locations))
	}
}

func TestProcessReprocessesFailedMessage(t *testing.T) {
	store := newMemStore()
	resolver := &fakeResolver{}
	c := newTestCoordinator(store, resolver)
	msg := telegram.RawMessage{ChannelID: 100, MessageID: 9, Text: "Обстріл Харків", PostedAt: time.Now()}

	store.locationErr = errors.New("disk full")
	c.handle(context.Background(), zap.NewNop(), msg)
	if m := store.message(100, 9); m.status != storage.MessageStatusFailed {
		t.Fatalf("got status %q, want failed", m.status)
	}

	store.locationErr = nil
	c.handle(context.Background(), zap.NewNop(), msg)
	m := store.message(100, 9)
	if m.status != storage.MessageStatusProcessed {
		t.Errorf("got status %q after retry, want processed", m.status)
	}
	if len(store.locations[m.id]) != 1 {
		t.Errorf("got %d location mentions after retry, want 1", len(store.locations[m.id]))
	}
}

func TestProcessLocationFailureKeepsDangerMentions(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(store, &fakeResolver{})
	store.locationErr = errors.New("constraint violation")

	c.handle(context.Background(), zap.NewNop(), telegram.RawMessage{
		ChannelID: 100, MessageID: 11, Text: "Вибух у Одеса", PostedAt: time.Now(),
	})

	m := store.message(100, 11)
	if m.status != storage.MessageStatusFailed {
		t.Errorf("got status %q, want failed", m.status)
	}
	if len(store.danger[m.id]) != 1 {
		t.Errorf("got %d danger mentions, want the explosion mention kept", len(store.danger[m.id]))
	}
}

func TestProcessMessageWithoutMatches(t *testing.T) {
	store := newMemStore()
	resolver := &fakeResolver{}
	c := newTestCoordinator(store, resolver)

	c.handle(context.Background(), zap.NewNop(), telegram.RawMessage{
		ChannelID: 100, MessageID: 3, Text: "Гарного дня всім", PostedAt: time.Now(),
	})

	m := store.message(100, 3)
	if m.status != storage.MessageStatusProcessed {
		t.Errorf("got status %q, want processed", m.status)
	}
	if m.hasLocation || m.hasDanger {
		t.Errorf("got hasLocation=%v hasDanger=%v, want both false", m.hasLocation, m.hasDanger)
	}
	if resolver.callCount() != 0 {
		t.Errorf("resolver called %d times for a message with no candidates", resolver.callCount())
	}
}

func TestRunConsumesQueueUntilCancelled(t *testing.T) {
	store := newMemStore()
	queue := make(chan telegram.RawMessage, 4)
	c := New(queue, store, extract.New(), &fakeResolver{}, 2, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	queue <- telegram.RawMessage{ChannelID: 1, MessageID: 1, Text: "Тривога у Львів", PostedAt: time.Now()}
	queue <- telegram.RawMessage{ChannelID: 2, MessageID: 5, Text: "Вибух", PostedAt: time.Now()}

	deadline := time.After(2 * time.Second)
	for {
		if store.statusOf(1, 1) == storage.MessageStatusProcessed &&
			store.statusOf(2, 5) == storage.MessageStatusProcessed {
			break
		}
		select {
		case <-deadline:
			t.Fatal("queued messages not processed in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestCursorWaitsForEarlierInFlightMessage(t *testing.T) {
	store := newMemStore()
	c := newTestCoordinator(store, &fakeResolver{})
	log := zap.NewNop()

	// Message 4 was dequeued by another worker and has not finished yet.
	c.progress.begin(100, 4)

	c.handle(context.Background(), log, telegram.RawMessage{
		ChannelID: 100, MessageID: 5, Text: "Вибух у Київ", PostedAt: time.Now(),
	})
	if got := store.cursor(100); got != 0 {
		t.Fatalf("cursor advanced to %d while message 4 is unfinished, want 0", got)
	}

	c.handle(context.Background(), log, telegram.RawMessage{
		ChannelID: 100, MessageID: 4, Text: "Обстріл Харків", PostedAt: time.Now(),
	})
	if got := store.cursor(100); got != 5 {
		t.Errorf("got cursor %d after both messages finished, want 5", got)
	}
}

// scriptedTransport plays back a fixed sequence of history responses.
type scriptedTransport struct {
	mu      sync.Mutex
	ready   chan struct{}
	batches [][]telegram.RawMessage
	errs    []error
	calls   int
	minIDs  []int64
}

func newScriptedTransport() *scriptedTransport {
	ready := make(chan struct{})
	close(ready)
	return &scriptedTransport{ready: ready}
}

func (s *scriptedTransport) Ready() <-chan struct{} { return s.ready }

func (s *scriptedTransport) ResolveChannel(_ context.Context, identifier string) (*telegram.Channel, error) {
	return &telegram.Channel{ID: 100, Title: identifier}, nil
}

func (s *scriptedTransport) History(_ context.Context, _ *telegram.Channel, minID int64, _ int) ([]telegram.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minIDs = append(s.minIDs, minID)
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.batches) {
		return s.batches[i], nil
	}
	return nil, nil
}

func raw(id int64, text string) telegram.RawMessage {
	return telegram.RawMessage{ChannelID: 100, MessageID: id, Text: text, PostedAt: time.Now()}
}

func TestReconnectRedeliveryPersistedOnce(t *testing.T) {
	store := newMemStore()
	transport := newScriptedTransport()
	// Two messages arrive, the transport drops mid-stream, and the recovered
	// connection redelivers a tail before new traffic.
	transport.batches = [][]telegram.RawMessage{
		{raw(1, "Вибух у Київ"), raw(2, "Тривога у Львів")},
		nil,
		{raw(2, "Тривога у Львів"), raw(3, "Обстріл Харків")},
	}
	transport.errs = []error{nil, errors.New("connection reset"), nil}

	queue := make(chan telegram.RawMessage, 16)
	pool := telegram.NewPool(transport, store, queue, []string{"@alerts"},
		time.Millisecond, 50, zap.NewNop())
	c := New(queue, store, extract.New(), &fakeResolver{}, 2, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = pool.Run(ctx) }()
	go func() { _ = c.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for store.statusOf(100, 1) != storage.MessageStatusProcessed ||
		store.statusOf(100, 2) != storage.MessageStatusProcessed ||
		store.statusOf(100, 3) != storage.MessageStatusProcessed {
		select {
		case <-deadline:
			t.Fatal("messages not processed after reconnect")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if got := store.insertedRows(); got != 3 {
		t.Errorf("got %d message rows, want 3 (redelivered id stored once)", got)
	}
}
