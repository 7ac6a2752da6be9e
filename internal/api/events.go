package api

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/matheus3301/mixdesk/internal/bus"
	"github.com/matheus3301/mixdesk/internal/rpc"
)

// WatchEvents forwards bus events matching the requested namespaces until
// the client goes away.
func (s *SessionService) WatchEvents(req *rpc.WatchEventsRequest, stream rpc.EventSender) error {
	ch, unsub := s.bus.Subscribe("", 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			if !matches(req.Namespaces, evt.Kind) {
				continue
			}
			out, err := toWire(evt)
			if err != nil {
				s.logger.Warn("dropping unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func matches(namespaces []string, kind string) bool {
	if len(namespaces) == 0 {
		return true
	}
	for _, ns := range namespaces {
		if strings.HasPrefix(kind, ns) {
			return true
		}
	}
	return false
}

func toWire(evt bus.Event) (*rpc.Event, error) {
	out := &rpc.Event{
		ID:               evt.ID,
		Kind:             evt.Kind,
		OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
	}
	if evt.Payload != nil {
		payload, err := json.Marshal(evt.Payload)
		if err != nil {
			return nil, err
		}
		out.Payload = payload
	}
	return out, nil
}
