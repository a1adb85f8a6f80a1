// Package repo persists the daily citation cache on the KV seam
package repo

import (
	"context"
	"encoding/json"
	"sort"

	perr "chartguard/internal/platform/errors"
	"chartguard/internal/platform/kv"
	"chartguard/internal/services/verify/domain"
)

// KeyCache holds the daily verification cache
const KeyCache = "citation_cache"

// KV is the citation cache repository
type KV struct {
	store kv.Store
}

// NewKV constructs a KV repo
func NewKV(store kv.Store) *KV { return &KV{store: store} }

// Snapshot returns the cache for today; a stored container from another day
// reads as empty (it is replaced on the next merge)
func (r *KV) Snapshot(ctx context.Context, today string) (domain.Cache, error) {
	raw, found, err := r.store.Get(ctx, KeyCache)
	if err != nil {
		return domain.Cache{}, err
	}
	if !found {
		return domain.EmptyCache(today), nil
	}
	c, err := decode(raw)
	if err != nil {
		return domain.Cache{}, err
	}
	if c.Day != today {
		return domain.EmptyCache(today), nil
	}
	return c, nil
}

// Merge adds entries into today's container under the key lock, pruning to
// the capacity before the single write. A container from a previous day is
// replaced outright
func (r *KV) Merge(ctx context.Context, today string, additions map[string]domain.Entry) error {
	if len(additions) == 0 {
		return nil
	}
	return r.store.Update(ctx, KeyCache, func(cur []byte, found bool) ([]byte, error) {
		c := domain.EmptyCache(today)
		if found {
			stored, err := decode(cur)
			if err != nil {
				return nil, err
			}
			if stored.Day == today {
				c = stored
			}
		}
		for id, e := range additions {
			if _, ok := c.Items[id]; !ok {
				c.Items[id] = e
			}
		}
		prune(&c)
		return json.Marshal(c)
	})
}

// prune keeps the newest CacheCap entries by observation time, newest first,
// ties broken by identifier for determinism
func prune(c *domain.Cache) {
	if len(c.Items) <= domain.CacheCap {
		return
	}
	type kt struct {
		id string
		t  int64
	}
	all := make([]kt, 0, len(c.Items))
	for id, e := range c.Items {
		all = append(all, kt{id: id, t: e.ObservedAt})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].t != all[j].t {
			return all[i].t > all[j].t
		}
		return all[i].id < all[j].id
	})
	kept := make(map[string]domain.Entry, domain.CacheCap)
	for _, k := range all[:domain.CacheCap] {
		kept[k.id] = c.Items[k.id]
	}
	c.Items = kept
}

func decode(raw []byte) (domain.Cache, error) {
	var c domain.Cache
	if err := json.Unmarshal(raw, &c); err != nil {
		return domain.Cache{}, perr.Wrap(err, perr.ErrorCodeStore, "verify: decode cache")
	}
	if c.Items == nil {
		c.Items = map[string]domain.Entry{}
	}
	return c, nil
}
