package guard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/matheus3301/mixdesk/internal/backend"
	sess "github.com/matheus3301/mixdesk/internal/session"
	st "github.com/matheus3301/mixdesk/internal/status"
)

var (
	checking      = sess.Snapshot{State: st.Checking, IsCheckingAuth: true}
	anonymous     = sess.Snapshot{State: st.Anonymous}
	authenticated = sess.Snapshot{State: st.Authenticated, IsAuthenticated: true, CurrentUser: backend.UserProfile{ID: "u1"}}
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		snap sess.Snapshot
		req  Requirement
		want Decision
	}{
		{"protected while checking", checking, RequireAuthenticated, Wait},
		{"protected anonymous", anonymous, RequireAuthenticated, Redirect},
		{"protected authenticated", authenticated, RequireAuthenticated, Allow},
		{"login page while checking", checking, RequireAnonymous, Wait},
		{"login page anonymous", anonymous, RequireAnonymous, Allow},
		{"login page authenticated", authenticated, RequireAnonymous, Redirect},
		{"public while checking", checking, None, Allow},
		{"unknown before check", sess.Snapshot{State: st.Unknown}, RequireAuthenticated, Redirect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.snap, tt.req))
		})
	}
}

func TestRulesLookup(t *testing.T) {
	rules := Rules{
		"/mixdesk.v1.ChatService/":          RequireAuthenticated,
		"/mixdesk.v1.SessionService/Login":  RequireAnonymous,
		"/mixdesk.v1.SessionService/Logout": RequireAuthenticated,
	}
	assert.Equal(t, RequireAuthenticated, rules.lookup("/mixdesk.v1.ChatService/OpenChat"))
	assert.Equal(t, RequireAnonymous, rules.lookup("/mixdesk.v1.SessionService/Login"))
	assert.Equal(t, None, rules.lookup("/mixdesk.v1.SessionService/GetStatus"))
}

func TestUnaryInterceptorCodes(t *testing.T) {
	rules := Rules{"/svc/Protected": RequireAuthenticated, "/svc/Login": RequireAnonymous}
	handler := func(ctx context.Context, req any) (any, error) { return "ok", nil }

	call := func(snap sess.Snapshot, method string) (any, error) {
		ic := UnaryInterceptor(func() sess.Snapshot { return snap }, rules)
		return ic(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: method}, handler)
	}

	_, err := call(checking, "/svc/Protected")
	assert.Equal(t, codes.Unavailable, status.Code(err))

	_, err = call(anonymous, "/svc/Protected")
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = call(authenticated, "/svc/Login")
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	resp, err := call(authenticated, "/svc/Protected")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestStreamInterceptor(t *testing.T) {
	ic := StreamInterceptor(func() sess.Snapshot { return anonymous }, Rules{"/svc/": RequireAuthenticated})
	called := false
	err := ic(nil, nil, &grpc.StreamServerInfo{FullMethod: "/svc/Watch"}, func(srv any, ss grpc.ServerStream) error {
		called = true
		return nil
	})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.False(t, called)
}
