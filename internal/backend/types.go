package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// UserProfile is the authenticated identity returned by login and check-auth.
type UserProfile struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	RoleName    string `json:"roleName"`
	RoleID      int    `json:"roleId"`
}

// IsZero reports whether p is the empty profile.
func (p UserProfile) IsZero() bool {
	return p == UserProfile{}
}

// Peer is the display data of the other participant in a conversation.
type Peer struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (p Peer) DisplayName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	case p.LastName != "":
		return p.LastName
	}
	return p.ID
}

// Message is a chat message as the messaging service stores it.
type Message struct {
	ID          string `json:"id"`
	SenderID    string `json:"senderId"`
	TextContent string `json:"textContent"`
	FileURL     string `json:"fileUrl,omitempty"`
	SentAt      Time   `json:"sentAt"`
}

// SendMessageRequest is the body of POST message.
type SendMessageRequest struct {
	SenderID string `json:"senderId"`
	PeerID   string `json:"peerId"`
	Text     string `json:"text"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Time is a timestamp that also accepts the zone-less ISO form the
// messaging service emits ("2024-05-01T10:00:00.123"), read as UTC.
type Time struct {
	time.Time
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = v
		return nil
	}
	for _, layout := range zonelessLayouts {
		if v, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = v
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}
