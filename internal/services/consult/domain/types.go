// Package domain defines the types and interfaces for the consult workflow
package domain

import (
	"context"
	"encoding/json"
)

// GeneratorPort is the narrow surface the workflow needs from the
// generation adapter
type GeneratorPort interface {
	Generate(ctx context.Context, credential, system, user string) (string, error)
	Model() string
}

// Result is one completed consult call
type Result struct {
	Status       string          `json:"status"`
	RedactedText string          `json:"redacted_text"`
	AgeGroup     string          `json:"age_group,omitempty"`
	Warnings     []string        `json:"warnings,omitempty"`
	Report       json.RawMessage `json:"report"`
	Citations    map[string]bool `json:"citations,omitempty"`
	Model        string          `json:"model"`
	Slot         int             `json:"slot"`
}

// WorkflowPort runs the gated consult workflow
type WorkflowPort interface {
	Consult(ctx context.Context, text string) (Result, error)
}
