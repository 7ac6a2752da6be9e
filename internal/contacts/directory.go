// Package contacts caches the list of people the user has exchanged
// messages with.
package contacts

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/mixdesk/internal/backend"
	"github.com/matheus3301/mixdesk/internal/bus"
	"github.com/matheus3301/mixdesk/internal/chat"
	"github.com/matheus3301/mixdesk/internal/status"
)

// KindRefreshed is published after every successful fetch.
const KindRefreshed = "contacts.refreshed"

// API fetches the contact list.
type API interface {
	Contacts(ctx context.Context, selfID string) ([]backend.Peer, error)
}

// Directory owns the cached contact list. The cache is dropped when the
// Chat Store signals that a new conversation was started and when the
// session leaves Authenticated.
type Directory struct {
	api      API
	identity chat.Identity
	bus      *bus.Bus
	logger   *zap.Logger

	mu     sync.Mutex
	cached []backend.Peer
	valid  bool
	owner  string // user id the cache belongs to

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an empty directory.
func New(api API, identity chat.Identity, b *bus.Bus, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{api: api, identity: identity, bus: b, logger: logger}
}

// List returns the contacts, fetching them when the cache is empty or stale.
func (d *Directory) List(ctx context.Context) ([]backend.Peer, error) {
	user, ok := d.identity.CurrentUser()
	if !ok {
		return nil, chat.ErrNoIdentity
	}

	d.mu.Lock()
	if d.valid && d.owner == user.ID {
		out := append([]backend.Peer(nil), d.cached...)
		d.mu.Unlock()
		return out, nil
	}
	d.mu.Unlock()

	return d.fetch(ctx, user.ID)
}

func (d *Directory) fetch(ctx context.Context, selfID string) ([]backend.Peer, error) {
	peers, err := d.api.Contacts(ctx, selfID)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.cached = peers
	d.valid = true
	d.owner = selfID
	d.mu.Unlock()

	d.bus.Emit(KindRefreshed, len(peers))
	return append([]backend.Peer(nil), peers...), nil
}

// Invalidate drops the cache.
func (d *Directory) Invalidate() {
	d.mu.Lock()
	d.valid = false
	d.mu.Unlock()
}

// Start listens for invalidation signals until Stop or ctx is done.
func (d *Directory) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})

	chatCh, unsubChat := d.bus.Subscribe(chat.KindContactsInvalidated, 16)
	sessCh, unsubSess := d.bus.Subscribe(status.KindStatusChanged, 16)

	go func() {
		defer close(d.done)
		defer unsubChat()
		defer unsubSess()
		for {
			select {
			case <-ctx.Done():
				return
			case <-chatCh:
				d.Invalidate()
				if user, ok := d.identity.CurrentUser(); ok {
					if _, err := d.fetch(ctx, user.ID); err != nil {
						d.logger.Warn("contacts refetch failed", zap.Error(err))
					}
				}
			case evt := <-sessCh:
				if change, ok := evt.Payload.(status.StatusChange); ok && change.From == status.Authenticated {
					d.mu.Lock()
					d.cached, d.valid, d.owner = nil, false, ""
					d.mu.Unlock()
				}
			}
		}
	}()
}

// Stop ends the listener started by Start.
func (d *Directory) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
	d.cancel = nil
}
