package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/mixdesk/internal/backend"
	"github.com/matheus3301/mixdesk/internal/bus"
	"github.com/matheus3301/mixdesk/internal/realtime"
)

var (
	t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Minute)
)

type fakeIdentity struct{ user backend.UserProfile }

func (f fakeIdentity) CurrentUser() (backend.UserProfile, bool) {
	return f.user, !f.user.IsZero()
}

// fakeAPI serves canned data. A peer listed in gates blocks until its
// channel is closed.
type fakeAPI struct {
	mu       sync.Mutex
	peers    map[string]backend.Peer
	history  map[string][]backend.Message
	gates    map[string]chan struct{}
	sendErr  error
	sent     []backend.SendMessageRequest
	sendGate chan struct{}
	nextID   int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		peers:   map[string]backend.Peer{},
		history: map[string][]backend.Message{},
		gates:   map[string]chan struct{}{},
	}
}

func (f *fakeAPI) wait(ctx context.Context, peerID string) error {
	f.mu.Lock()
	gate := f.gates[peerID]
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeAPI) PeerData(ctx context.Context, peerID string) (backend.Peer, error) {
	if err := f.wait(ctx, peerID); err != nil {
		return backend.Peer{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.peers[peerID]
	if !ok {
		return backend.Peer{}, &backend.APIError{Status: 404, Path: "user-data"}
	}
	return p, nil
}

func (f *fakeAPI) History(ctx context.Context, selfID, peerID string) ([]backend.Message, error) {
	if err := f.wait(ctx, peerID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.Message(nil), f.history[peerID]...), nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, req backend.SendMessageRequest) (backend.Message, error) {
	if f.sendGate != nil {
		<-f.sendGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	if f.sendErr != nil {
		return backend.Message{}, f.sendErr
	}
	f.nextID++
	return backend.Message{
		ID:          "s" + string(rune('0'+f.nextID)),
		SenderID:    req.SenderID,
		TextContent: req.Text,
		SentAt:      backend.Time{Time: t1},
	}, nil
}

// fakeLive records handlers and lets tests emit invocations.
type fakeLive struct {
	mu       sync.Mutex
	handlers map[string]map[int]realtime.Handler
	next     int
}

func newFakeLive() *fakeLive {
	return &fakeLive{handlers: map[string]map[int]realtime.Handler{}}
}

func (f *fakeLive) On(target string, fn realtime.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers[target] == nil {
		f.handlers[target] = map[int]realtime.Handler{}
	}
	f.next++
	id := f.next
	f.handlers[target][id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers[target], id)
	}
}

func (f *fakeLive) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, hs := range f.handlers {
		n += len(hs)
	}
	return n
}

func (f *fakeLive) emit(t *testing.T, target string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	f.mu.Lock()
	var hs []realtime.Handler
	for _, h := range f.handlers[target] {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h([]json.RawMessage{raw})
	}
}

type harness struct {
	store *Store
	api   *fakeAPI
	live  *fakeLive
	bus   *bus.Bus
}

func newHarness() *harness {
	h := &harness{api: newFakeAPI(), live: newFakeLive(), bus: bus.New()}
	h.api.peers["u2"] = backend.Peer{ID: "u2", FirstName: "Bea", LastName: "Ortiz"}
	h.api.peers["u3"] = backend.Peer{ID: "u3", FirstName: "Cy"}
	h.store = New(h.api, fakeIdentity{backend.UserProfile{ID: "u1"}}, h.live, h.bus, nil, nil)
	return h
}

func msg(id, sender, text string, at time.Time) backend.Message {
	return backend.Message{ID: id, SenderID: sender, TextContent: text, SentAt: backend.Time{Time: at}}
}

func ids(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestSelectPeerLoadsPeerAndHistory(t *testing.T) {
	h := newHarness()
	h.api.history["u2"] = []backend.Message{msg("m1", "u2", "hi", t0), msg("m2", "u1", "hey", t1)}

	require.NoError(t, h.store.SelectPeer(context.Background(), "u2"))

	snap := h.store.Snapshot()
	assert.Equal(t, "u2", snap.SelectedID)
	assert.Equal(t, "Bea Ortiz", snap.SelectedPeer.DisplayName())
	assert.Equal(t, []string{"m1", "m2"}, ids(snap.Messages))
	assert.Equal(t, Offline, snap.Presence)
}

func TestSelectPeerRequiresIdentity(t *testing.T) {
	h := newHarness()
	s := New(h.api, fakeIdentity{}, h.live, nil, nil, nil)
	assert.ErrorIs(t, s.SelectPeer(context.Background(), "u2"), ErrNoIdentity)
	_, err := s.SendMessage(context.Background(), "u2", "hi")
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestSelectPeerFetchesAreIndependent(t *testing.T) {
	h := newHarness()
	h.api.history["u9"] = []backend.Message{msg("m1", "u9", "hi", t0)}

	err := h.store.SelectPeer(context.Background(), "u9")
	require.Error(t, err)
	assert.Equal(t, 404, backend.StatusOf(err))

	snap := h.store.Snapshot()
	assert.Equal(t, []string{"m1"}, ids(snap.Messages))
	assert.Empty(t, snap.SelectedPeer.ID)
}

func TestStaleSelectionIsDiscarded(t *testing.T) {
	h := newHarness()
	h.api.history["u2"] = []backend.Message{msg("p1", "u2", "from P", t0)}
	h.api.history["u3"] = []backend.Message{msg("q1", "u3", "from Q", t0)}
	gate := make(chan struct{})
	h.api.gates["u2"] = gate

	first := make(chan error, 1)
	go func() { first <- h.store.SelectPeer(context.Background(), "u2") }()

	// Let the first selection take its generation before the second starts.
	require.Eventually(t, func() bool { return h.store.Snapshot().SelectedID == "u2" }, time.Second, time.Millisecond)

	require.NoError(t, h.store.SelectPeer(context.Background(), "u3"))
	close(gate)
	require.NoError(t, <-first)

	snap := h.store.Snapshot()
	assert.Equal(t, "u3", snap.SelectedID)
	assert.Equal(t, "u3", snap.SelectedPeer.ID)
	assert.Equal(t, []string{"q1"}, ids(snap.Messages))
}

func TestClearSelectionKeepsMessages(t *testing.T) {
	h := newHarness()
	h.api.history["u2"] = []backend.Message{msg("m1", "u2", "hi", t0)}
	require.NoError(t, h.store.SelectPeer(context.Background(), "u2"))

	h.store.ClearSelection()

	snap := h.store.Snapshot()
	assert.Empty(t, snap.SelectedID)
	assert.Empty(t, snap.SelectedPeer.ID)
	assert.Equal(t, Offline, snap.Presence)
	assert.Equal(t, []string{"m1"}, ids(snap.Messages))
}

func TestSendIntoEmptyConversationInvalidatesOnce(t *testing.T) {
	h := newHarness()
	events, unsub := h.bus.Subscribe(KindContactsInvalidated, 8)
	defer unsub()
	require.NoError(t, h.store.SelectPeer(context.Background(), "u2"))

	_, err := h.store.SendMessage(context.Background(), "u2", "first")
	require.NoError(t, err)
	_, err = h.store.SendMessage(context.Background(), "u2", "second")
	require.NoError(t, err)

	select {
	case evt := <-events:
		assert.Equal(t, "u2", evt.Payload)
	case <-time.After(time.Second):
		t.Fatal("no invalidation")
	}
	assert.Empty(t, events, "second send must not invalidate")
}

func TestSendIntoExistingConversationDoesNotInvalidate(t *testing.T) {
	h := newHarness()
	h.api.history["u2"] = []backend.Message{msg("m1", "u2", "hi", t0)}
	events, unsub := h.bus.Subscribe(KindContactsInvalidated, 8)
	defer unsub()
	require.NoError(t, h.store.SelectPeer(context.Background(), "u2"))

	sent, err := h.store.SendMessage(context.Background(), "u2", "reply")
	require.NoError(t, err)
	assert.Equal(t, "reply", sent.TextContent)
	assert.Empty(t, events)

	snap := h.store.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, sent.ID, snap.Messages[1].ID)
	assert.Equal(t, Sent, snap.Messages[1].Delivery)
	assert.Equal(t, []backend.SendMessageRequest{{SenderID: "u1", PeerID: "u2", Text: "reply"}}, h.api.sent)
}

func TestFailedSendInvalidatesNothing(t *testing.T) {
	h := newHarness()
	h.api.sendErr = &backend.APIError{Status: 500, Path: "message"}
	events, unsub := h.bus.Subscribe(KindContactsInvalidated, 8)
	defer unsub()
	require.NoError(t, h.store.SelectPeer(context.Background(), "u2"))

	_, err := h.store.SendMessage(context.Background(), "u2", "first")
	require.Error(t, err)
	assert.Empty(t, events)
	assert.Empty(t, h.store.Snapshot().Messages)
}

func TestSendShowsPendingEntryUntilAcknowledged(t *testing.T) {
	h := newHarness()
	h.api.sendGate = make(chan struct{})
	require.NoError(t, h.store.SelectPeer(context.Background(), "u2"))

	done := make(chan error, 1)
	go func() {
		_, err := h.store.SendMessage(context.Background(), "u2", "hello")
		done <- err
	}()

	require.Eventually(t, func() bool { return len(h.store.Snapshot().Messages) == 1 }, time.Second, time.Millisecond)
	pending := h.store.Snapshot().Messages[0]
	assert.Empty(t, pending.ID)
	assert.Equal(t, Pending, pending.Delivery)
	assert.Equal(t, "hello", pending.TextContent)
	assert.NotEmpty(t, pending.ClientID)

	close(h.api.sendGate)
	require.NoError(t, <-done)

	snap := h.store.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.NotEmpty(t, snap.Messages[0].ID)
	assert.Equal(t, Sent, snap.Messages[0].Delivery)
	assert.Equal(t, pending.ClientID, snap.Messages[0].ClientID)
}

func TestSendRejectsEmptyText(t *testing.T) {
	h := newHarness()
	_, err := h.store.SendMessage(context.Background(), "u2", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, h.api.sent)
}

func TestIncomingMessageAppendsAndMarksOnline(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.store.SelectPeer(context.Background(), "u2"))
	h.store.SubscribeToLive()
	// Drain the selection signal.
	select {
	case <-h.store.Changes():
	default:
	}

	// Every snapshot taken while the event lands shows both fields or neither.
	stop := make(chan struct{})
	violations := make(chan Snapshot, 1)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap := h.store.Snapshot()
			if len(snap.Messages) == 1 && snap.Presence != Online {
				select {
				case violations <- snap:
				default:
				}
			}
		}
	}()

	h.live.emit(t, TargetMessage, msg("m9", "u2", "yo", t0))
	close(stop)

	select {
	case <-h.store.Changes():
	case <-time.After(time.Second):
		t.Fatal("no change signal")
	}
	snap := h.store.Snapshot()
	assert.Equal(t, []string{"m9"}, ids(snap.Messages))
	assert.Equal(t, Online, snap.Presence)
	assert.Empty(t, violations)
}

func TestIncomingMessageFromOtherPeerIgnored(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.store.SelectPeer(context.Background(), "u2"))
	h.store.SubscribeToLive()

	h.live.emit(t, TargetMessage, msg("x1", "u3", "wrong chat", t0))

	snap := h.store.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.Equal(t, Offline, snap.Presence)
}

func TestDuplicateLiveMessageIgnored(t *testing.T) {
	h := newHarness()
	h.api.history["u2"] = []backend.Message{msg("m1", "u2", "hi", t0)}
	require.NoError(t, h.store.SelectPeer(context.Background(), "u2"))
	h.store.SubscribeToLive()

	h.live.emit(t, TargetMessage, msg("m1", "u2", "hi", t0))
	assert.Len(t, h.store.Snapshot().Messages, 1)
}

func TestPresencePayloadForms(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.store.SelectPeer(context.Background(), "u2"))
	h.store.SubscribeToLive()

	h.live.emit(t, TargetPresence, "Online")
	assert.Equal(t, Online, h.store.Snapshot().Presence)

	h.live.emit(t, TargetPresence, 0)
	assert.Equal(t, Offline, h.store.Snapshot().Presence)

	h.live.emit(t, TargetPresence, map[string]any{"userId": "u2", "status": true})
	assert.Equal(t, Online, h.store.Snapshot().Presence)

	h.live.emit(t, TargetPresence, map[string]any{"userId": "u3", "status": "Offline"})
	assert.Equal(t, Online, h.store.Snapshot().Presence, "update for another user")

	h.live.emit(t, TargetPresence, "Away")
	assert.Equal(t, Online, h.store.Snapshot().Presence, "unknown status")
}

func TestParsePresence(t *testing.T) {
	tests := []struct {
		raw    string
		userID string
		want   Presence
		ok     bool
	}{
		{`"online"`, "", Online, true},
		{`"OFFLINE"`, "", Offline, true},
		{`1`, "", Online, true},
		{`false`, "", Offline, true},
		{`{"userId":"u2","status":"Online"}`, "u2", Online, true},
		{`{"userId":"u2","status":2}`, "u2", Offline, false},
		{`[1]`, "", Offline, false},
	}
	for _, tt := range tests {
		userID, p, ok := parsePresence(json.RawMessage(tt.raw))
		assert.Equal(t, tt.userID, userID, tt.raw)
		assert.Equal(t, tt.want, p, tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
	}
}

func TestSubscribeIsIdempotent(t *testing.T) {
	h := newHarness()
	h.store.SubscribeToLive()
	h.store.SubscribeToLive()
	assert.Equal(t, 2, h.live.count())
	assert.True(t, h.store.Snapshot().Subscribed)
}

func TestUnsubscribeTwiceLeavesNoHandlers(t *testing.T) {
	h := newHarness()
	h.store.UnsubscribeFromLive()

	h.store.SubscribeToLive()
	h.store.UnsubscribeFromLive()
	h.store.UnsubscribeFromLive()
	assert.Zero(t, h.live.count())
	assert.False(t, h.store.Snapshot().Subscribed)

	for range 3 {
		h.store.SubscribeToLive()
		h.store.UnsubscribeFromLive()
	}
	assert.Zero(t, h.live.count())
}

func TestUnsubscribeAgainstRealHub(t *testing.T) {
	hub := realtime.New(realtime.Options{URL: "ws://unused"}, nil, nil, nil, nil)
	h := newHarness()
	s := New(h.api, fakeIdentity{backend.UserProfile{ID: "u1"}}, hub, nil, nil, nil)

	s.SubscribeToLive()
	assert.Equal(t, 1, hub.Handlers(TargetMessage))
	assert.Equal(t, 1, hub.Handlers(TargetPresence))

	s.UnsubscribeFromLive()
	s.UnsubscribeFromLive()
	assert.Zero(t, hub.Handlers(TargetMessage))
	assert.Zero(t, hub.Handlers(TargetPresence))
}

func TestResetClearsEverything(t *testing.T) {
	h := newHarness()
	h.api.history["u2"] = []backend.Message{msg("m1", "u2", "hi", t0)}
	require.NoError(t, h.store.SelectPeer(context.Background(), "u2"))
	h.store.SubscribeToLive()

	h.store.Reset()

	snap := h.store.Snapshot()
	assert.Empty(t, snap.SelectedID)
	assert.Empty(t, snap.Messages)
	assert.False(t, snap.Subscribed)
	assert.Zero(t, h.live.count())
}

func TestExampleConversation(t *testing.T) {
	h := newHarness()
	h.api.history["u2"] = []backend.Message{msg("m1", "u2", "hi", t0)}

	require.NoError(t, h.store.SelectPeer(context.Background(), "u2"))
	h.store.SubscribeToLive()
	h.live.emit(t, TargetMessage, msg("m2", "u2", "there", t1))

	snap := h.store.Snapshot()
	require.Equal(t, []string{"m1", "m2"}, ids(snap.Messages))
	assert.Equal(t, "there", snap.Messages[1].TextContent)
	assert.True(t, snap.Messages[1].SentAt.Equal(t1))
	assert.Equal(t, Online, snap.Presence)
}

func TestMergeHistoryKeepsLocalArrivals(t *testing.T) {
	local := []Message{
		{Message: msg("m1", "u2", "dup", t0), Delivery: Sent},
		{Message: msg("m3", "u2", "live", t1), Delivery: Sent},
		{Message: backend.Message{TextContent: "pending"}, ClientID: "c1", Delivery: Pending},
	}
	out := mergeHistory([]backend.Message{msg("m1", "u2", "hi", t0), msg("m2", "u1", "yo", t0)}, local)
	assert.Equal(t, []string{"m1", "m2", "m3", ""}, ids(out))
}
