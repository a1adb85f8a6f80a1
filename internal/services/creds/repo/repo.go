// Package repo persists credential slots and usage records on the KV seam
package repo

import (
	"context"
	"encoding/json"
	"fmt"

	perr "chartguard/internal/platform/errors"
	"chartguard/internal/platform/kv"
	"chartguard/internal/services/creds/domain"
)

const (
	// KeyCredentials holds the slot material list
	KeyCredentials = "api_credentials"
	// KeyUsage holds the slot usage map
	KeyUsage = "credential_usage"
)

// SlotID is the usage-map key for a slot index
func SlotID(index int) string { return fmt.Sprintf("key_%d", index) }

// KV is the credential repository over the key-value seam
type KV struct {
	store kv.Store
}

// NewKV constructs a KV repo
func NewKV(store kv.Store) *KV { return &KV{store: store} }

// Credentials returns the slot material list, always SlotCount long
func (r *KV) Credentials(ctx context.Context) ([]string, error) {
	raw, found, err := r.store.Get(ctx, KeyCredentials)
	if err != nil {
		return nil, err
	}
	out := make([]string, domain.SlotCount)
	if !found {
		return out, nil
	}
	var stored []string
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeStore, "creds: decode credentials")
	}
	copy(out, stored)
	return out, nil
}

// PutCredential writes material to the slot at index ("" clears the slot)
func (r *KV) PutCredential(ctx context.Context, index int, material string) error {
	return r.store.Update(ctx, KeyCredentials, func(cur []byte, found bool) ([]byte, error) {
		list := make([]string, domain.SlotCount)
		if found {
			var stored []string
			if err := json.Unmarshal(cur, &stored); err != nil {
				return nil, perr.Wrap(err, perr.ErrorCodeStore, "creds: decode credentials")
			}
			copy(list, stored)
		}
		list[index] = material
		return json.Marshal(list)
	})
}

// Usage returns the usage map without holding the key lock
func (r *KV) Usage(ctx context.Context) (map[string]domain.SlotUsage, error) {
	raw, found, err := r.store.Get(ctx, KeyUsage)
	if err != nil {
		return nil, err
	}
	if !found {
		return map[string]domain.SlotUsage{}, nil
	}
	return decodeUsage(raw)
}

// MutateUsage applies fn to the usage map under the key's Update lock.
// fn returns false to skip the write-back
func (r *KV) MutateUsage(ctx context.Context, fn func(u map[string]domain.SlotUsage) (bool, error)) error {
	return r.store.Update(ctx, KeyUsage, func(cur []byte, found bool) ([]byte, error) {
		u := map[string]domain.SlotUsage{}
		if found {
			var err error
			if u, err = decodeUsage(cur); err != nil {
				return nil, err
			}
		}
		changed, err := fn(u)
		if err != nil {
			return nil, err
		}
		if !changed {
			return nil, kv.ErrSkip
		}
		return json.Marshal(u)
	})
}

func decodeUsage(raw []byte) (map[string]domain.SlotUsage, error) {
	var u map[string]domain.SlotUsage
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeStore, "creds: decode usage")
	}
	if u == nil {
		u = map[string]domain.SlotUsage{}
	}
	return u, nil
}
