// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"

	"github.com/pdiddy/indexer/internal/resolve"
	"github.com/pdiddy/indexer/internal/retry"
)

// retryingLookup bounds every proxy lookup with the store policy.
type retryingLookup struct {
	store  resolve.ProxyLookup
	policy retry.Policy
}

func (l retryingLookup) LookupProxy(ctx context.Context, id string) (string, bool, error) {
	var (
		proxy string
		found bool
	)
	err := retry.Do(ctx, l.policy, "looking up "+id, func(ctx context.Context) error {
		p, ok, err := l.store.LookupProxy(ctx, id)
		if err != nil {
			return err
		}
		proxy, found = p, ok
		return nil
	})
	return proxy, found, err
}
