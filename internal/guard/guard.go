// Package guard gates control-plane calls on the session state, the way a
// protected route waits for the session check and redirects anonymous users.
package guard

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/matheus3301/mixdesk/internal/session"
)

// Requirement is what a call needs from the session.
type Requirement int

const (
	// None lets the call through in any state.
	None Requirement = iota
	// RequireAuthenticated admits only a logged-in session.
	RequireAuthenticated
	// RequireAnonymous admits only a session with nobody logged in.
	RequireAnonymous
)

// Decision is the outcome of evaluating a requirement.
type Decision int

const (
	Allow Decision = iota
	// Wait means the session check is still running.
	Wait
	// Redirect means the session is in the wrong state for the call.
	Redirect
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Wait:
		return "wait"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

// Evaluate decides whether a call with requirement r may proceed.
func Evaluate(snap session.Snapshot, r Requirement) Decision {
	if r == None {
		return Allow
	}
	if snap.IsCheckingAuth {
		return Wait
	}
	switch r {
	case RequireAuthenticated:
		if snap.IsAuthenticated {
			return Allow
		}
	case RequireAnonymous:
		if !snap.IsAuthenticated {
			return Allow
		}
	}
	return Redirect
}

// SnapshotFunc returns the current session.
type SnapshotFunc func() session.Snapshot

// Rules maps full gRPC method names ("/pkg.Service/Method") or service
// prefixes ("/pkg.Service/") to requirements. Exact names win over prefixes.
type Rules map[string]Requirement

func (r Rules) lookup(fullMethod string) Requirement {
	if req, ok := r[fullMethod]; ok {
		return req
	}
	best, req := -1, None
	for key, v := range r {
		if strings.HasSuffix(key, "/") && strings.HasPrefix(fullMethod, key) && len(key) > best {
			best, req = len(key), v
		}
	}
	return req
}

func check(snap SnapshotFunc, rules Rules, fullMethod string) error {
	req := rules.lookup(fullMethod)
	switch Evaluate(snap(), req) {
	case Allow:
		return nil
	case Wait:
		return status.Error(codes.Unavailable, "session check in progress, retry shortly")
	default:
		if req == RequireAnonymous {
			return status.Error(codes.FailedPrecondition, "already logged in")
		}
		return status.Error(codes.Unauthenticated, "not logged in")
	}
}

// UnaryInterceptor enforces rules on unary calls.
func UnaryInterceptor(snap SnapshotFunc, rules Rules) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := check(snap, rules, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor enforces rules on streaming calls.
func StreamInterceptor(snap SnapshotFunc, rules Rules) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := check(snap, rules, info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}
