// Package chat owns the open conversation: which peer is selected, its
// message history, live message ingestion and the peer's presence.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matheus3301/mixdesk/internal/backend"
	"github.com/matheus3301/mixdesk/internal/bus"
	"github.com/matheus3301/mixdesk/internal/metrics"
	"github.com/matheus3301/mixdesk/internal/realtime"
)

// Hub invocation targets the store listens to.
const (
	TargetMessage  = "ReceiveMessageFromSender"
	TargetPresence = "ReceiveAvailabilityStatusMessage"
)

// Bus event kinds published by the store.
const (
	KindContactsInvalidated = "chat.contacts_invalidated"
	KindMessageReceived     = "chat.message_received"
	KindPresenceChanged     = "chat.presence_changed"
	KindMessageSent         = "chat.message_sent"
	KindSendFailed          = "chat.send_failed"
)

var (
	ErrNoIdentity   = errors.New("no authenticated user")
	ErrEmptyMessage = errors.New("message text is empty")
)

// API is the slice of the messaging service the store calls.
type API interface {
	PeerData(ctx context.Context, peerID string) (backend.Peer, error)
	History(ctx context.Context, selfID, peerID string) ([]backend.Message, error)
	SendMessage(ctx context.Context, req backend.SendMessageRequest) (backend.Message, error)
}

// Identity yields the authenticated user. The Session Store implements it.
type Identity interface {
	CurrentUser() (backend.UserProfile, bool)
}

// LiveSource delivers server invocations. The realtime hub implements it.
type LiveSource interface {
	On(target string, fn realtime.Handler) (off func())
}

// Store is the Chat Store.
type Store struct {
	api      API
	identity Identity
	live     LiveSource
	bus      *bus.Bus
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu         sync.RWMutex
	generation uint64
	selectedID string
	peer       backend.Peer
	presence   Presence
	messages   []Message
	offs       []func()

	changes chan struct{}
}

// New creates an empty store.
func New(api API, identity Identity, live LiveSource, b *bus.Bus, logger *zap.Logger, m *metrics.Metrics) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		api:      api,
		identity: identity,
		live:     live,
		bus:      b,
		logger:   logger,
		metrics:  m,
		presence: Offline,
		changes:  make(chan struct{}, 1),
	}
}

// Changes signals that the snapshot changed. Signals are coalesced: a
// receiver that falls behind sees one pending signal, not one per change.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		SelectedID:   s.selectedID,
		SelectedPeer: s.peer,
		Presence:     s.presence,
		Messages:     append([]Message(nil), s.messages...),
		Subscribed:   s.offs != nil,
	}
}

// SelectPeer opens the conversation with peerID. Peer data and history are
// fetched concurrently and applied independently; a response that arrives
// after another SelectPeer, ClearSelection or Reset is discarded.
// The first fetch error is returned after both fetches finish.
func (s *Store) SelectPeer(ctx context.Context, peerID string) error {
	user, ok := s.identity.CurrentUser()
	if !ok {
		return ErrNoIdentity
	}
	if peerID == "" {
		return errors.New("select peer: empty peer id")
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.selectedID = peerID
	s.peer = backend.Peer{}
	s.presence = Offline
	s.messages = nil
	s.mu.Unlock()
	s.notify()
	s.metrics.PeerSelected()

	var g errgroup.Group
	g.Go(func() error {
		peer, err := s.api.PeerData(ctx, peerID)
		if err != nil {
			return fmt.Errorf("peer data: %w", err)
		}
		s.apply(gen, func() { s.peer = peer })
		return nil
	})
	g.Go(func() error {
		history, err := s.api.History(ctx, user.ID, peerID)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		s.apply(gen, func() { s.messages = mergeHistory(history, s.messages) })
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("select peer incomplete", zap.String("peer_id", peerID), zap.Error(err))
		return err
	}
	s.logger.Debug("peer selected", zap.String("peer_id", peerID))
	return nil
}

// apply runs fn under the lock if gen is still the current selection.
func (s *Store) apply(gen uint64, fn func()) bool {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		s.metrics.StaleResponse()
		return false
	}
	fn()
	s.mu.Unlock()
	s.notify()
	return true
}

// mergeHistory returns the fetched history followed by entries added locally
// while the fetch was in flight (live arrivals, optimistic sends) that the
// history does not already contain.
func mergeHistory(history []backend.Message, local []Message) []Message {
	out := make([]Message, 0, len(history)+len(local))
	seen := make(map[string]struct{}, len(history))
	for _, m := range history {
		out = append(out, Message{Message: m, Delivery: Sent})
		if m.ID != "" {
			seen[m.ID] = struct{}{}
		}
	}
	for _, m := range local {
		if _, dup := seen[m.ID]; dup && m.ID != "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// ClearSelection closes the conversation. The message sequence is kept until
// the next SelectPeer.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.generation++
	s.selectedID = ""
	s.peer = backend.Peer{}
	s.presence = Offline
	s.mu.Unlock()
	s.notify()
}

// SubscribeToLive registers the message and presence handlers. Calling it
// while already subscribed does nothing.
func (s *Store) SubscribeToLive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offs != nil {
		return
	}
	s.offs = []func(){
		s.live.On(TargetMessage, s.onMessage),
		s.live.On(TargetPresence, s.onPresence),
	}
	s.logger.Debug("live subscription on")
}

// UnsubscribeFromLive removes both handlers. Safe to call when not subscribed.
func (s *Store) UnsubscribeFromLive() {
	s.mu.Lock()
	offs := s.offs
	s.offs = nil
	s.mu.Unlock()

	for _, off := range offs {
		off()
	}
	if offs != nil {
		s.logger.Debug("live subscription off")
	}
}

// Reset drops every piece of conversation state. Used when the session ends.
func (s *Store) Reset() {
	s.UnsubscribeFromLive()

	s.mu.Lock()
	s.generation++
	s.selectedID = ""
	s.peer = backend.Peer{}
	s.presence = Offline
	s.messages = nil
	s.mu.Unlock()
	s.notify()
}

func (s *Store) onMessage(args []json.RawMessage) {
	if len(args) == 0 {
		return
	}
	var m backend.Message
	if err := json.Unmarshal(args[0], &m); err != nil {
		s.logger.Warn("dropping malformed live message", zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.offs == nil || s.selectedID == "" || m.SenderID != s.selectedID {
		s.mu.Unlock()
		return
	}
	if m.ID != "" && s.indexByID(m.ID) >= 0 {
		s.mu.Unlock()
		return
	}
	// A message is proof the sender is online; both fields move together.
	s.messages = append(s.messages, Message{Message: m, Delivery: Sent})
	s.presence = Online
	s.mu.Unlock()

	s.notify()
	s.bus.Emit(KindMessageReceived, m)
}

func (s *Store) onPresence(args []json.RawMessage) {
	if len(args) == 0 {
		return
	}
	userID, p, ok := parsePresence(args[0])
	if !ok {
		s.logger.Debug("unrecognized presence payload", zap.ByteString("payload", args[0]))
		return
	}

	s.mu.Lock()
	if s.offs == nil || s.selectedID == "" || (userID != "" && userID != s.selectedID) {
		s.mu.Unlock()
		return
	}
	changed := s.presence != p
	s.presence = p
	peerID := s.selectedID
	s.mu.Unlock()

	if changed {
		s.notify()
		s.bus.Emit(KindPresenceChanged, PresenceChange{PeerID: peerID, Presence: p})
	}
}

// PresenceChange is the payload of KindPresenceChanged.
type PresenceChange struct {
	PeerID   string   `json:"peerId"`
	Presence Presence `json:"presence"`
}

func (s *Store) indexByID(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexByClientID(clientID string) int {
	for i := range s.messages {
		if s.messages[i].ClientID == clientID {
			return i
		}
	}
	return -1
}

// SendMessage posts text to peerID. When peerID is the selected peer a
// pending entry is shown at once and replaced by the server's message, or
// removed if the send fails. A successful first message into an empty
// conversation publishes KindContactsInvalidated once.
func (s *Store) SendMessage(ctx context.Context, peerID, text string) (backend.Message, error) {
	user, ok := s.identity.CurrentUser()
	if !ok {
		return backend.Message{}, ErrNoIdentity
	}
	if peerID == "" {
		return backend.Message{}, errors.New("send message: empty peer id")
	}
	if strings.TrimSpace(text) == "" {
		return backend.Message{}, ErrEmptyMessage
	}

	clientID := uuid.NewString()

	s.mu.Lock()
	gen := s.generation
	selected := peerID == s.selectedID
	// A peer that is not selected has no local sequence, so it counts as empty.
	wasEmpty := !selected || len(s.messages) == 0
	if selected {
		s.messages = append(s.messages, Message{
			Message: backend.Message{
				SenderID:    user.ID,
				TextContent: text,
				SentAt:      backend.Time{Time: time.Now().UTC()},
			},
			ClientID: clientID,
			Delivery: Pending,
		})
	}
	s.mu.Unlock()
	if selected {
		s.notify()
	}

	sent, err := s.api.SendMessage(ctx, backend.SendMessageRequest{
		SenderID: user.ID,
		PeerID:   peerID,
		Text:     text,
	})
	s.metrics.MessageSent(err == nil)

	s.mu.Lock()
	idx := s.indexByClientID(clientID)
	switch {
	case err != nil && idx >= 0:
		s.messages = append(s.messages[:idx:idx], s.messages[idx+1:]...)
	case err == nil && idx >= 0 && sent.ID != "" && s.indexByID(sent.ID) >= 0:
		// A history fetch already brought the stored copy in.
		s.messages = append(s.messages[:idx:idx], s.messages[idx+1:]...)
	case err == nil && idx >= 0:
		s.messages[idx] = Message{Message: sent, ClientID: clientID, Delivery: Sent}
	case err == nil && selected && s.generation == gen && s.indexByID(sent.ID) < 0:
		s.messages = append(s.messages, Message{Message: sent, ClientID: clientID, Delivery: Sent})
	}
	s.mu.Unlock()
	if selected {
		s.notify()
	}

	if err != nil {
		s.logger.Warn("send failed", zap.String("peer_id", peerID), zap.String("client_id", clientID), zap.Error(err))
		s.bus.Emit(KindSendFailed, SendFailure{PeerID: peerID, ClientID: clientID, Reason: backend.UserMessage(err)})
		return backend.Message{}, fmt.Errorf("send message: %w", err)
	}

	s.logger.Info("message sent", zap.String("peer_id", peerID), zap.String("message_id", sent.ID))
	s.bus.Emit(KindMessageSent, sent)
	if wasEmpty {
		s.bus.Emit(KindContactsInvalidated, peerID)
	}
	return sent, nil
}

// SendFailure is the payload of KindSendFailed.
type SendFailure struct {
	PeerID   string `json:"peerId"`
	ClientID string `json:"clientId"`
	Reason   string `json:"reason"`
}
