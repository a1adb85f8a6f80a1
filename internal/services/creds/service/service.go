// Package service implements credential slot selection, accounting, and repair
package service

import (
	"context"
	"net/http"
	"strings"

	"chartguard/internal/platform/clock"
	perr "chartguard/internal/platform/errors"
	"chartguard/internal/platform/logger"
	"chartguard/internal/services/creds/domain"
	"chartguard/internal/services/creds/repo"
)

// Service implements domain.RotatorPort over the KV repo.
// All usage mutations run under the usage key's Update lock, so two
// concurrent selections can never both observe the same pre-update state
type Service struct {
	repo  *repo.KV
	clock clock.Clock
	log   logger.Logger
}

// New constructs the rotator service
func New(r *repo.KV, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{repo: r, clock: clk, log: *logger.Named("creds")}
}

// GetActive selects the lowest-index usable slot.
//
// Stale day records are reset first (all slots, persisted in the same write);
// an expired cooldown flips back to active before the slot is evaluated.
// Disabled slots are skipped until Configure replaces them
func (s *Service) GetActive(ctx context.Context) (domain.ActiveCredential, error) {
	materials, err := s.repo.Credentials(ctx)
	if err != nil {
		return domain.ActiveCredential{}, err
	}

	now := s.clock.Now()
	today := clock.DayStamp(now, nil)
	nowMS := now.UnixMilli()

	selected := -1
	err = s.repo.MutateUsage(ctx, func(u map[string]domain.SlotUsage) (bool, error) {
		changed := false
		for i := 0; i < domain.SlotCount; i++ {
			id := repo.SlotID(i)
			rec, ok := u[id]
			if !ok || rec.Day != today {
				u[id] = domain.Fresh(today)
				changed = true
			}
		}

		for i := 0; i < len(materials) && i < domain.SlotCount; i++ {
			if materials[i] == "" {
				continue
			}
			id := repo.SlotID(i)
			rec := u[id]

			if rec.State == domain.SlotDisabled {
				continue
			}
			if rec.State == domain.SlotCooldown {
				if nowMS < rec.CooldownUntilMS {
					continue
				}
				rec.State = domain.SlotActive
				rec.CooldownUntilMS = 0
				u[id] = rec
				changed = true
			}
			if rec.Count >= domain.MaxDailyUsage {
				continue
			}

			selected = i
			break
		}
		return changed, nil
	})
	if err != nil {
		return domain.ActiveCredential{}, err
	}

	if selected < 0 {
		return domain.ActiveCredential{}, perr.Exhaustedf("all credential slots exhausted or disabled")
	}
	s.log.Debug().Int("slot", selected).Msg("credential selected")
	return domain.ActiveCredential{Material: materials[selected], Index: selected}, nil
}

// IncrementUsage adds one successful call to the slot's daily count.
// Unknown slots are a no-op, matching the selection's lazy record creation
func (s *Service) IncrementUsage(ctx context.Context, index int) error {
	if index < 0 || index >= domain.SlotCount {
		return perr.InvalidArgf("slot index %d out of range", index)
	}
	return s.repo.MutateUsage(ctx, func(u map[string]domain.SlotUsage) (bool, error) {
		id := repo.SlotID(index)
		rec, ok := u[id]
		if !ok {
			return false, nil
		}
		rec.Count++
		u[id] = rec
		return true, nil
	})
}

// ReportError downgrades the slot after a failed upstream call.
// Auth failures disable the slot until reconfigured; rate-limit style
// failures cool down for five minutes, anything else for one
func (s *Service) ReportError(ctx context.Context, index int, httpStatus int) error {
	if index < 0 || index >= domain.SlotCount {
		return perr.InvalidArgf("slot index %d out of range", index)
	}
	nowMS := s.clock.Now().UnixMilli()
	return s.repo.MutateUsage(ctx, func(u map[string]domain.SlotUsage) (bool, error) {
		id := repo.SlotID(index)
		rec, ok := u[id]
		if !ok {
			return false, nil
		}
		switch httpStatus {
		case http.StatusUnauthorized, http.StatusForbidden:
			rec.State = domain.SlotDisabled
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			rec.State = domain.SlotCooldown
			rec.CooldownUntilMS = nowMS + domain.CooldownLong.Milliseconds()
		default:
			rec.State = domain.SlotCooldown
			rec.CooldownUntilMS = nowMS + domain.CooldownShort.Milliseconds()
		}
		u[id] = rec
		s.log.Warn().Int("slot", index).Int("status", httpStatus).
			Str("state", string(rec.State)).Msg("credential error reported")
		return true, nil
	})
}

// Configure writes slot material ("" clears the slot) and resets its usage
// record, reviving a disabled slot
func (s *Service) Configure(ctx context.Context, index int, material string) error {
	if index < 0 || index >= domain.SlotCount {
		return perr.InvalidArgf("slot index %d out of range", index)
	}
	if err := s.repo.PutCredential(ctx, index, material); err != nil {
		return err
	}
	today := clock.DayStamp(s.clock.Now(), nil)
	return s.repo.MutateUsage(ctx, func(u map[string]domain.SlotUsage) (bool, error) {
		u[repo.SlotID(index)] = domain.Fresh(today)
		return true, nil
	})
}

// Status lists every slot with masked material for external display
func (s *Service) Status(ctx context.Context) ([]domain.SlotStatus, error) {
	materials, err := s.repo.Credentials(ctx)
	if err != nil {
		return nil, err
	}
	usage, err := s.repo.Usage(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.SlotStatus, domain.SlotCount)
	for i := 0; i < domain.SlotCount; i++ {
		st := domain.SlotStatus{Index: i, State: domain.SlotActive}
		if i < len(materials) && materials[i] != "" {
			st.Configured = true
			st.Masked = mask(materials[i])
		}
		if rec, ok := usage[repo.SlotID(i)]; ok {
			st.Count = rec.Count
			st.Day = rec.Day
			st.State = rec.State
			st.CooldownMS = rec.CooldownUntilMS
		}
		out[i] = st
	}
	return out, nil
}

// mask keeps the last four characters of the material
func mask(material string) string {
	if len(material) <= 4 {
		return strings.Repeat("*", len(material))
	}
	return strings.Repeat("*", 4) + material[len(material)-4:]
}
