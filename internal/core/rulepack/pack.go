// Package rulepack loads and compiles the sensitivity rule set from the
// embedded rules.json. Each rule binds its pattern and display label in a
// single record, so the two can never drift apart
package rulepack

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.json
var embedded []byte

type rawRule struct {
	ID      string `json:"id" yaml:"id"`
	Pattern string `json:"pattern" yaml:"pattern"`
	Label   string `json:"label" yaml:"label"`
}

type rawAge struct {
	LabelToken string   `json:"label_token" yaml:"label_token"`
	YearUnits  []string `json:"year_units" yaml:"year_units"`
	MonthUnits []string `json:"month_units" yaml:"month_units"`
}

type rawPack struct {
	Version     int       `json:"version" yaml:"version"`
	Placeholder string    `json:"placeholder" yaml:"placeholder"`
	Age         rawAge    `json:"age" yaml:"age"`
	Hard        []rawRule `json:"hard" yaml:"hard"`
	Soft        []rawRule `json:"soft" yaml:"soft"`
}

// Rule is one compiled pattern with its human-readable label.
// A hard rule's match is conclusive; a soft rule's match is a weak signal
type Rule struct {
	ID    string
	Label string
	Re    *regexp.Regexp
}

// AgeRules holds the compiled age-extraction machinery.
// NumberUnit matches "<1-3 digits><ws><unit>"; LabelNumber matches
// "age[: ]<1-3 digits>". Word-boundary enforcement is done by the gate in
// rune space, since RE2 \b is ASCII-only and the units are mixed-script
type AgeRules struct {
	NumberUnit  *regexp.Regexp
	LabelNumber *regexp.Regexp
	MonthUnits  map[string]struct{} // lowercased unit tokens that divide by 12
}

// Pack is the compiled rule set consumed by the gate
type Pack struct {
	Version     int
	Placeholder string
	Age         AgeRules
	Hard        []Rule
	Soft        []Rule
}

// Load compiles the embedded default pack
func Load() (*Pack, error) {
	var rp rawPack
	if err := json.Unmarshal(embedded, &rp); err != nil {
		return nil, fmt.Errorf("rulepack: parse rules.json: %w", err)
	}
	return compile(rp)
}

// LoadFile compiles a pack from an external JSON or YAML file, for deployments
// that tune the rule set to another locale's naming and date conventions
func LoadFile(path string) (*Pack, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rulepack: read %s: %w", path, err)
	}
	var rp rawPack
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &rp); err != nil {
			return nil, fmt.Errorf("rulepack: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &rp); err != nil {
			return nil, fmt.Errorf("rulepack: parse %s: %w", path, err)
		}
	}
	return compile(rp)
}

func compile(rp rawPack) (*Pack, error) {
	if rp.Version != 1 {
		return nil, fmt.Errorf("rulepack: unsupported rules version %d (want 1)", rp.Version)
	}
	if rp.Placeholder == "" {
		return nil, fmt.Errorf("rulepack: empty redaction placeholder")
	}
	if rp.Age.LabelToken == "" || len(rp.Age.YearUnits)+len(rp.Age.MonthUnits) == 0 {
		return nil, fmt.Errorf("rulepack: incomplete age rules")
	}

	p := &Pack{
		Version:     rp.Version,
		Placeholder: rp.Placeholder,
	}

	var err error
	if p.Hard, err = compileRules("hard", rp.Hard); err != nil {
		return nil, err
	}
	if p.Soft, err = compileRules("soft", rp.Soft); err != nil {
		return nil, err
	}
	if len(p.Hard) == 0 {
		return nil, fmt.Errorf("rulepack: no hard rules")
	}

	if p.Age, err = compileAge(rp.Age); err != nil {
		return nil, err
	}
	return p, nil
}

func compileRules(kind string, raws []rawRule) ([]Rule, error) {
	out := make([]Rule, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	for i, r := range raws {
		if strings.TrimSpace(r.ID) == "" || strings.TrimSpace(r.Label) == "" {
			return nil, fmt.Errorf("rulepack: %s rule %d missing id or label", kind, i)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("rulepack: duplicate %s rule id %q", kind, r.ID)
		}
		seen[r.ID] = struct{}{}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rulepack: compile %s rule %q: %w", kind, r.ID, err)
		}
		out = append(out, Rule{ID: r.ID, Label: r.Label, Re: re})
	}
	return out, nil
}

func compileAge(a rawAge) (AgeRules, error) {
	units := make([]string, 0, len(a.YearUnits)+len(a.MonthUnits))
	months := make(map[string]struct{}, len(a.MonthUnits))
	for _, u := range a.YearUnits {
		u = strings.TrimSpace(u)
		if u != "" {
			units = append(units, u)
		}
	}
	for _, u := range a.MonthUnits {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		units = append(units, u)
		months[strings.ToLower(u)] = struct{}{}
	}
	// RE2 alternation is leftmost-first, so longer tokens must come first
	// ("months" before "month" before "mo")
	sort.SliceStable(units, func(i, j int) bool { return len(units[i]) > len(units[j]) })

	quoted := make([]string, len(units))
	for i, u := range units {
		quoted[i] = regexp.QuoteMeta(u)
	}
	nu, err := regexp.Compile(`(?i)(\d{1,3})\s*(` + strings.Join(quoted, "|") + `)`)
	if err != nil {
		return AgeRules{}, fmt.Errorf("rulepack: compile age number-unit: %w", err)
	}
	ln, err := regexp.Compile(`(?i)(` + regexp.QuoteMeta(a.LabelToken) + `)[:\s]*(\d{1,3})`)
	if err != nil {
		return AgeRules{}, fmt.Errorf("rulepack: compile age label-number: %w", err)
	}
	return AgeRules{NumberUnit: nu, LabelNumber: ln, MonthUnits: months}, nil
}

// IsMonthUnit reports whether unit (any case) converts its value from months
func (a AgeRules) IsMonthUnit(unit string) bool {
	_, ok := a.MonthUnits[strings.ToLower(unit)]
	return ok
}
