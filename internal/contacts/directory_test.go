package contacts

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/mixdesk/internal/backend"
	"github.com/matheus3301/mixdesk/internal/bus"
	"github.com/matheus3301/mixdesk/internal/chat"
	"github.com/matheus3301/mixdesk/internal/status"
)

type fakeAPI struct {
	calls atomic.Int32
	mu    sync.Mutex
	peers []backend.Peer
}

func (f *fakeAPI) Contacts(ctx context.Context, selfID string) ([]backend.Peer, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.Peer(nil), f.peers...), nil
}

type identity struct{ id string }

func (i identity) CurrentUser() (backend.UserProfile, bool) {
	return backend.UserProfile{ID: i.id}, i.id != ""
}

func TestListCachesUntilInvalidated(t *testing.T) {
	api := &fakeAPI{peers: []backend.Peer{{ID: "u2"}}}
	d := New(api, identity{"u1"}, bus.New(), nil)

	peers, err := d.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, peers, 1)
	_, err = d.List(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, api.calls.Load())

	d.Invalidate()
	_, err = d.List(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, api.calls.Load())
}

func TestListRequiresIdentity(t *testing.T) {
	d := New(&fakeAPI{}, identity{}, bus.New(), nil)
	_, err := d.List(context.Background())
	assert.ErrorIs(t, err, chat.ErrNoIdentity)
}

func TestRefetchesOnInvalidationEvent(t *testing.T) {
	b := bus.New()
	api := &fakeAPI{peers: []backend.Peer{{ID: "u2"}}}
	d := New(api, identity{"u1"}, b, nil)
	refreshed, unsub := b.Subscribe(KindRefreshed, 4)
	defer unsub()

	d.Start(context.Background())
	defer d.Stop()

	_, err := d.List(context.Background())
	require.NoError(t, err)
	<-refreshed

	api.mu.Lock()
	api.peers = append(api.peers, backend.Peer{ID: "u3"})
	api.mu.Unlock()
	b.Emit(chat.KindContactsInvalidated, "u3")

	select {
	case evt := <-refreshed:
		assert.Equal(t, 2, evt.Payload)
	case <-time.After(time.Second):
		t.Fatal("no refetch")
	}
	peers, err := d.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, peers, 2)
	assert.EqualValues(t, 2, api.calls.Load())
}

func TestLeavingAuthenticatedDropsCache(t *testing.T) {
	b := bus.New()
	api := &fakeAPI{peers: []backend.Peer{{ID: "u2"}}}
	d := New(api, identity{"u1"}, b, nil)
	d.Start(context.Background())
	defer d.Stop()

	_, err := d.List(context.Background())
	require.NoError(t, err)

	b.Emit(status.KindStatusChanged, status.StatusChange{From: status.Authenticated, To: status.Anonymous})
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return !d.valid
	}, time.Second, time.Millisecond)
}
