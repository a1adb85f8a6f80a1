// Package domain defines the types and interfaces for the credential rotator
package domain

import "time"

const (
	// SlotCount is the fixed number of credential slots
	SlotCount = 4

	// MaxDailyUsage is the per-slot successful-call quota per JST day
	MaxDailyUsage = 20

	// CooldownLong applies after rate-limit style failures (429, 503)
	CooldownLong = 5 * time.Minute

	// CooldownShort applies after other non-auth failures
	CooldownShort = 1 * time.Minute
)

// SlotState is the health state of one credential slot
type SlotState string

const (
	// SlotActive means the slot is selectable
	SlotActive SlotState = "active"
	// SlotCooldown means the slot is timed out until CooldownUntilMS
	SlotCooldown SlotState = "cooldown"
	// SlotDisabled means an auth failure retired the slot until reconfigured
	SlotDisabled SlotState = "disabled"
)

// SlotUsage is the persisted per-slot daily record
type SlotUsage struct {
	Count           int       `json:"count"`
	Day             string    `json:"day"`
	State           SlotState `json:"state"`
	CooldownUntilMS int64     `json:"cooldown_until_ms"`
}

// Fresh returns a zeroed active record for day
func Fresh(day string) SlotUsage {
	return SlotUsage{Count: 0, Day: day, State: SlotActive, CooldownUntilMS: 0}
}

// ActiveCredential is the result of a selection
type ActiveCredential struct {
	Material string
	Index    int
}

// SlotStatus is the externally visible view of one slot, material masked
type SlotStatus struct {
	Index      int       `json:"index"`
	Configured bool      `json:"configured"`
	Masked     string    `json:"masked,omitempty"`
	Count      int       `json:"count"`
	Day        string    `json:"day"`
	State      SlotState `json:"state"`
	CooldownMS int64     `json:"cooldown_until_ms,omitempty"`
}
