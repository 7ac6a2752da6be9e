package rpc

import (
	"encoding/json"

	"github.com/matheus3301/mixdesk/internal/backend"
	"github.com/matheus3301/mixdesk/internal/chat"
)

type GetStatusRequest struct{}

type StatusResponse struct {
	Profile         string               `json:"profile"`
	State           string               `json:"state"`
	IsAuthenticated bool                 `json:"isAuthenticated"`
	IsCheckingAuth  bool                 `json:"isCheckingAuth"`
	User            *backend.UserProfile `json:"user,omitempty"`
	LastError       string               `json:"lastError,omitempty"`
	HubState        string               `json:"hubState"`
	UptimeMs        int64                `json:"uptimeMs"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User backend.UserProfile `json:"user"`
}

type LogoutRequest struct{}

type LogoutResponse struct{}

// WatchEventsRequest selects bus namespaces ("session.", "chat.", "hub.").
// No namespaces means every event.
type WatchEventsRequest struct {
	Namespaces []string `json:"namespaces,omitempty"`
}

// Event is a bus event as streamed to clients.
type Event struct {
	ID               string          `json:"id"`
	Kind             string          `json:"kind"`
	OccurredAtUnixMs int64           `json:"occurredAtUnixMs"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

type OpenChatRequest struct {
	PeerID string `json:"peerId"`
}

type CloseChatRequest struct{}

type GetChatRequest struct{}

type ChatResponse struct {
	Chat chat.Snapshot `json:"chat"`
}

type SendMessageRequest struct {
	PeerID string `json:"peerId"`
	Text   string `json:"text"`
}

type SendMessageResponse struct {
	Message backend.Message `json:"message"`
}

type ListContactsRequest struct {
	Refresh bool `json:"refresh,omitempty"`
}

type ListContactsResponse struct {
	Contacts []backend.Peer `json:"contacts"`
}
