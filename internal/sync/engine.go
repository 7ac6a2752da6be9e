// Package sync couples the session lifecycle to the realtime connection: the
// hub runs only while the session is authenticated, and the Chat Store is
// torn down whenever the session ends.
package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/matheus3301/mixdesk/internal/bus"
	"github.com/matheus3301/mixdesk/internal/status"
)

// Hub is the realtime connection the engine drives.
type Hub interface {
	Start(ctx context.Context)
	Stop()
}

// Chat is the conversation state dropped when the session ends.
type Chat interface {
	Reset()
}

// Engine reacts to session transitions published on the bus.
type Engine struct {
	hub    Hub
	chat   Chat
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a new lifecycle engine.
func NewEngine(hub Hub, chat Chat, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		hub:    hub,
		chat:   chat,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to session events on the bus. If the session is already
// authenticated, pass status.Authenticated as current so the hub starts now.
func (e *Engine) Start(ctx context.Context, current status.State) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.bus.Subscribe("session.", 256)

	if current == status.Authenticated {
		e.hub.Start(ctx)
	}

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and the hub.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
		e.cancel = nil
	}
	e.hub.Stop()
}

func (e *Engine) handleEvent(ctx context.Context, evt bus.Event) {
	if evt.Kind != status.KindStatusChanged {
		return
	}
	change, ok := evt.Payload.(status.StatusChange)
	if !ok {
		return
	}
	switch {
	case change.To == status.Authenticated:
		e.logger.Info("session authenticated, starting hub")
		e.hub.Start(ctx)
	case change.From == status.Authenticated:
		e.logger.Info("session ended, tearing down live state", zap.String("to", string(change.To)))
		e.chat.Reset()
		e.hub.Stop()
	}
}
