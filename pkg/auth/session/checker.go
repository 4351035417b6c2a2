package session

import (
	"context"
	"fmt"
	"strings"
)

// AccessSessionChecker exposes the read-only surface needed by middleware.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

type sessionStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	AccessSessionKey(accessID string) string
}

// Checker looks up access sessions written by the identity service. A missing
// key means the session was revoked or never existed.
type Checker struct {
	store sessionStore
}

func NewChecker(store sessionStore) (*Checker, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	return &Checker{store: store}, nil
}

// HasSession reports whether the provided access ID still has an active session.
func (c *Checker) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, fmt.Errorf("access id is required")
	}
	return c.store.Exists(ctx, c.store.AccessSessionKey(accessID))
}
