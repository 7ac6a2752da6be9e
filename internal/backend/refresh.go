package backend

import (
	"context"
	"net/http"
)

// RefreshOn401 returns middleware that recovers from an expired access token.
//
// A 401 on any path but PathRefresh, for a request not yet retried, triggers
// one call to refresh. When refresh succeeds the original request is replayed
// once with Retried set, so a second 401 is returned as-is. When refresh fails
// onFailure is called and the original 401 is returned.
func RefreshOn401(refresh func(ctx context.Context) error, onFailure func(err error)) Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			resp, err := next.Do(ctx, req)
			if err == nil || StatusOf(err) != http.StatusUnauthorized || req.Path == PathRefresh || req.Retried {
				return resp, err
			}

			if rerr := refresh(ctx); rerr != nil {
				if onFailure != nil {
					onFailure(rerr)
				}
				return nil, err
			}

			retry := req.Clone()
			retry.Retried = true
			return next.Do(ctx, retry)
		})
	}
}
