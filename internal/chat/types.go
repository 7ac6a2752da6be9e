package chat

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/matheus3301/mixdesk/internal/backend"
)

// Presence is the availability of the selected peer.
type Presence string

const (
	Offline Presence = "OFFLINE"
	Online  Presence = "ONLINE"
)

// Delivery is the local delivery state of a message.
type Delivery string

const (
	// Pending marks an optimistic entry that has no server id yet.
	Pending Delivery = "PENDING"
	Sent    Delivery = "SENT"
)

// Message is a conversation entry. ClientID is set on messages sent from
// this process and correlates the optimistic entry with the server reply.
type Message struct {
	backend.Message
	ClientID string   `json:"clientId,omitempty"`
	Delivery Delivery `json:"delivery"`
}

// Snapshot is a copy of the chat state.
type Snapshot struct {
	SelectedID   string       `json:"selectedId"`
	SelectedPeer backend.Peer `json:"selectedPeer"`
	Presence     Presence     `json:"presence"`
	Messages     []Message    `json:"messages"`
	Subscribed   bool         `json:"subscribed"`
}

// PresenceUpdate is the object form of a presence broadcast.
type PresenceUpdate struct {
	UserID string          `json:"userId"`
	Status json.RawMessage `json:"status"`
}

// parsePresence decodes a presence payload. It accepts a bare status
// ("Online", 1, true) or an object {userId, status}. userID is empty for the
// bare form.
func parsePresence(raw json.RawMessage) (userID string, p Presence, ok bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var u PresenceUpdate
		if err := json.Unmarshal(raw, &u); err != nil {
			return "", Offline, false
		}
		p, ok = parseStatus(u.Status)
		return u.UserID, p, ok
	}
	p, ok = parseStatus(raw)
	return "", p, ok
}

func parseStatus(raw json.RawMessage) (Presence, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Offline, false
	}
	switch s := v.(type) {
	case string:
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "online", "1", "true":
			return Online, true
		case "offline", "0", "false":
			return Offline, true
		}
	case float64:
		if s == 1 {
			return Online, true
		}
		if s == 0 {
			return Offline, true
		}
	case bool:
		if s {
			return Online, true
		}
		return Offline, true
	}
	return Offline, false
}
