// Package kv provides the durable key-value seam shared by the credential
// rotator and the verification cache.
//
// Every read-modify-write in those components goes through Update, which the
// implementations serialize per key: concurrent selections or cache merges
// must never observe (and overwrite) the same pre-update state
package kv

import (
	"context"
	"errors"
)

// ErrSkip can be returned by an UpdateFn to leave the stored value untouched.
// Update then returns nil
var ErrSkip = errors.New("kv: skip update")

// IsSkip reports whether err is the skip sentinel
func IsSkip(err error) bool { return errors.Is(err, ErrSkip) }

// UpdateFn receives the current value (found=false when the key is absent)
// and returns the replacement value. Returning nil bytes with a nil error
// deletes nothing; it stores an empty value, so callers should marshal a
// real payload. Return ErrSkip to keep the current value
type UpdateFn func(current []byte, found bool) ([]byte, error)

// Store is the durable key-value port
type Store interface {
	// Get returns the raw value for key, found=false when absent
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set unconditionally writes value under key
	Set(ctx context.Context, key string, value []byte) error

	// Update applies fn to the current value atomically with respect to
	// other Update and Set calls on the same key
	Update(ctx context.Context, key string, fn UpdateFn) error
}
