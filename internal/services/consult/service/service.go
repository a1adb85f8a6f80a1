// Package service composes the gate, rotator, generator, and verifier into
// the consult workflow
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"chartguard/internal/adapters/genai"
	"chartguard/internal/core/phigate"
	perr "chartguard/internal/platform/errors"
	"chartguard/internal/platform/logger"
	"chartguard/internal/services/consult/domain"
	credsdom "chartguard/internal/services/creds/domain"
	verifydom "chartguard/internal/services/verify/domain"

	"github.com/google/uuid"
)

// SystemPrompt instructs the model: decision-support content only, fixed
// JSON schema, Japanese output
const SystemPrompt = `
You are a clinical differential diagnosis assistant for Japanese clinicians.
Output support content only: list differentials, cannot-miss items, red flags, and next questions/tests.
Do NOT provide treatment, dosing, or disposition instructions.
Do NOT claim certainty or provide numeric probabilities.
Use only information present in the input; explicitly list missing info needed.

IMPORTANT: OUTPUT LANGUAGE MUST BE JAPANESE (日本語).
- Diagnosis names: Japanese (English in parens if helpful).
- Explanations: Japanese.
- Next steps: Japanese.
- Chart summary: Japanese.

JSON Output Schema:
{
  "blocked": "none" | "phi_suspected" | "policy_treatment",
  "common_likely": [{ "name": "string (Japanese)", "confidence": "high|medium|low" }],
  "cannot_miss": [{ "name": "string (Japanese)", "confidence": "high|medium|low" }],
  "red_flags": ["string (Japanese)"],
  "next_questions_tests": ["string (Japanese)"],
  "why": [
    { "name": "string (Diagnosis)", "supporting_facts": "string (Japanese)", "counterpoints": "string (Japanese)", "missing_info": "string (Japanese)" }
  ],
  "chart_copy_summary": "string (Japanese)"
}
`

var citationRe = regexp.MustCompile(`(?i)PMID[:\s]*([0-9]{1,8})`)

// Service implements domain.WorkflowPort
type Service struct {
	gate     *phigate.Gate
	rotator  credsdom.RotatorPort
	gen      domain.GeneratorPort
	verifier verifydom.VerifierPort
	log      logger.Logger
}

// New constructs the workflow service
func New(g *phigate.Gate, rot credsdom.RotatorPort, gen domain.GeneratorPort, ver verifydom.VerifierPort) *Service {
	return &Service{gate: g, rotator: rot, gen: gen, verifier: ver, log: *logger.Named("consult")}
}

// Consult runs one gated generation call.
//
// The gate runs immediately before transmission so re-introduced identifying
// content is caught even if an earlier analyze call passed. Only the redacted
// text and the categorical age line ever leave the process. There is no
// internal retry; callers rotate-and-retry by calling again
func (s *Service) Consult(ctx context.Context, text string) (domain.Result, error) {
	callID := uuid.NewString()
	log := s.log.With().Str("call_id", callID).Logger()

	verdict := s.gate.Analyze(text)
	if verdict.Status == phigate.StatusRed {
		log.Warn().Strs("reasons", verdict.BlockReasons).Msg("consult blocked")
		return domain.Result{}, perr.Blockedf(
			"identifying content detected: %s", joinReasons(verdict.BlockReasons))
	}

	cred, err := s.rotator.GetActive(ctx)
	if err != nil {
		return domain.Result{}, err
	}

	ageLine := "Age Context: Unknown"
	ageGroup := ""
	if verdict.AgeContext != nil {
		ageGroup = verdict.AgeContext.AgeGroup
		ageLine = "Age Context: " + ageGroup
	}
	user := fmt.Sprintf("Selected Text:\n%s\n\n%s\n\nTask: Produce differential diagnosis JSON.",
		verdict.RedactedText, ageLine)

	reply, err := s.gen.Generate(ctx, cred.Material, SystemPrompt, user)
	if err != nil {
		var se *genai.StatusError
		if errors.As(err, &se) {
			if rerr := s.rotator.ReportError(ctx, cred.Index, se.Status); rerr != nil {
				log.Error().Err(rerr).Int("slot", cred.Index).Msg("report error failed")
			}
		}
		return domain.Result{}, err
	}
	if err := s.rotator.IncrementUsage(ctx, cred.Index); err != nil {
		log.Error().Err(err).Int("slot", cred.Index).Msg("increment usage failed")
	}

	report := json.RawMessage(reply)
	var probe struct {
		Blocked string `json:"blocked"`
	}
	if err := json.Unmarshal(report, &probe); err != nil {
		return domain.Result{}, perr.Upstreamf("generation reply is not the expected JSON")
	}
	if probe.Blocked == "phi_suspected" {
		return domain.Result{}, perr.Blockedf("model reported suspected identifying content")
	}

	citations, err := s.verifyCitations(ctx, reply)
	if err != nil {
		// verification is best effort; the report stands on its own
		log.Warn().Err(err).Msg("citation verification failed")
		citations = nil
	}

	log.Info().Int("slot", cred.Index).Str("model", s.gen.Model()).
		Int("citations", len(citations)).Msg("consult done")

	return domain.Result{
		Status:       string(verdict.Status),
		RedactedText: verdict.RedactedText,
		AgeGroup:     ageGroup,
		Warnings:     verdict.BlockReasons,
		Report:       report,
		Citations:    citations,
		Model:        s.gen.Model(),
		Slot:         cred.Index,
	}, nil
}

func (s *Service) verifyCitations(ctx context.Context, reply string) (map[string]bool, error) {
	ms := citationRe.FindAllStringSubmatch(reply, -1)
	if len(ms) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m[1])
	}
	return s.verifier.Verify(ctx, ids)
}

func joinReasons(reasons []string) string { return strings.Join(reasons, ", ") }

// GenAI adapts the generation client to the workflow port
type GenAI struct {
	Client *genai.Client
}

// Model implements domain.GeneratorPort
func (g GenAI) Model() string { return g.Client.Model() }

// Generate implements domain.GeneratorPort
func (g GenAI) Generate(ctx context.Context, credential, system, user string) (string, error) {
	return g.Client.Generate(ctx, credential, genai.Request{
		Contents:          []genai.Content{{Parts: []genai.Part{{Text: user}}}},
		SystemInstruction: &genai.Content{Parts: []genai.Part{{Text: system}}},
		GenerationConfig:  &genai.GenerationConfig{Temperature: 0.2, ResponseMimeType: "application/json"},
	})
}
