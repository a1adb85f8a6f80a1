// Package service implements the daily-cached citation identifier verifier
package service

import (
	"context"
	"strings"

	"chartguard/internal/platform/clock"
	"chartguard/internal/platform/logger"
	"chartguard/internal/services/verify/domain"
	"chartguard/internal/services/verify/repo"

	"golang.org/x/text/width"
)

// Service implements domain.VerifierPort.
// Live probes run outside the cache key's lock; only the merge of new
// entries takes it, so a slow network call never blocks other writers
type Service struct {
	repo  *repo.KV
	probe domain.ProbePort
	clock clock.Clock
	log   logger.Logger
}

// New constructs the verifier service
func New(r *repo.KV, probe domain.ProbePort, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{repo: r, probe: probe, clock: clk, log: *logger.Named("verify")}
}

// Verify resolves each identifier to a verified flag.
//
// Identifiers are width-folded and trimmed so full-width digits pasted from
// Japanese text hit the same cache entries as their ASCII forms; results are
// keyed by the normalized form and echoed under the caller's original key
// when it differs. Cache hits answer from today's container; misses probe
// live and are merged back in a single write, only when something new was
// learned. Additions within one call carry strictly increasing observation
// stamps so the capacity prune evicts in insertion order
func (s *Service) Verify(ctx context.Context, ids []string) (map[string]bool, error) {
	results := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return results, nil
	}

	now := s.clock.Now()
	today := clock.DayStamp(now, nil)

	cache, err := s.repo.Snapshot(ctx, today)
	if err != nil {
		return nil, err
	}

	additions := map[string]domain.Entry{}
	stamp := now.UnixMilli()
	for _, raw := range ids {
		id := Normalize(raw)
		if id == "" {
			continue
		}
		verified, done := results[id]
		if !done {
			if e, ok := cache.Items[id]; ok {
				verified = e.Verified
			} else {
				verified = s.probe.Exists(ctx, id)
				additions[id] = domain.Entry{Verified: verified, ObservedAt: stamp}
				stamp++
			}
			results[id] = verified
		}
		if raw != id {
			results[raw] = verified
		}
	}

	if len(additions) == 0 {
		return results, nil
	}
	if err := s.repo.Merge(ctx, today, additions); err != nil {
		return nil, err
	}
	s.log.Debug().Int("probed", len(additions)).Int("total", len(results)).Msg("citation batch verified")
	return results, nil
}

// Normalize folds width variants and trims surrounding space
func Normalize(id string) string {
	return strings.TrimSpace(width.Fold.String(id))
}
