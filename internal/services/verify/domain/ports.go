package domain

import "context"

// VerifierPort answers identifier existence queries with daily caching
type VerifierPort interface {
	Verify(ctx context.Context, ids []string) (map[string]bool, error)
}

// ProbePort is the live existence check behind the cache
type ProbePort interface {
	Exists(ctx context.Context, id string) bool
}
