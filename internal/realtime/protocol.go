package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// recordSeparator terminates every message of the JSON hub protocol.
const recordSeparator = 0x1e

// Hub protocol message types.
const (
	typeInvocation = 1
	typeStreamItem = 2
	typeCompletion = 3
	typePing       = 6
	typeClose      = 7
)

var handshakeRequest = append([]byte(`{"protocol":"json","version":1}`), recordSeparator)

var pingFrame = append([]byte(`{"type":6}`), recordSeparator)

type handshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// frame is the union of the hub messages a receive-only client handles.
type frame struct {
	Type           int               `json:"type"`
	Target         string            `json:"target,omitempty"`
	Arguments      []json.RawMessage `json:"arguments,omitempty"`
	Error          string            `json:"error,omitempty"`
	AllowReconnect bool              `json:"allowReconnect,omitempty"`
}

// splitRecords returns the non-empty records in a websocket payload. The
// server may batch several records into one payload.
func splitRecords(data []byte) [][]byte {
	var out [][]byte
	for _, rec := range bytes.Split(data, []byte{recordSeparator}) {
		if len(bytes.TrimSpace(rec)) > 0 {
			out = append(out, rec)
		}
	}
	return out
}

func parseHandshake(data []byte) error {
	recs := splitRecords(data)
	if len(recs) == 0 {
		return fmt.Errorf("empty handshake response")
	}
	var resp handshakeResponse
	if err := json.Unmarshal(recs[0], &resp); err != nil {
		return fmt.Errorf("decode handshake response: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("handshake rejected: %s", resp.Error)
	}
	return nil
}
