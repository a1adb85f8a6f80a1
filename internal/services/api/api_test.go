package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chartguard/internal/core/phigate"
	"chartguard/internal/core/rulepack"
	perr "chartguard/internal/platform/errors"
	"chartguard/internal/platform/web"
	consultdom "chartguard/internal/services/consult/domain"
	credsdom "chartguard/internal/services/creds/domain"

	"github.com/go-chi/chi/v5"
)

type fakeRotator struct {
	slots      []credsdom.SlotStatus
	configured map[int]string
}

func (f *fakeRotator) GetActive(context.Context) (credsdom.ActiveCredential, error) {
	return credsdom.ActiveCredential{}, perr.Exhaustedf("all credential slots exhausted or disabled")
}

func (f *fakeRotator) IncrementUsage(context.Context, int) error { return nil }

func (f *fakeRotator) ReportError(context.Context, int, int) error { return nil }

func (f *fakeRotator) Configure(_ context.Context, idx int, material string) error {
	if f.configured == nil {
		f.configured = map[int]string{}
	}
	f.configured[idx] = material
	return nil
}

func (f *fakeRotator) Status(context.Context) ([]credsdom.SlotStatus, error) {
	if f.slots != nil {
		return f.slots, nil
	}
	out := make([]credsdom.SlotStatus, credsdom.SlotCount)
	for i := range out {
		out[i] = credsdom.SlotStatus{Index: i, State: credsdom.SlotActive}
	}
	return out, nil
}

type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, ids []string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, id := range ids {
		out[id] = id == "31978945"
	}
	return out, nil
}

type fakeWorkflow struct {
	res consultdom.Result
	err error
}

func (f *fakeWorkflow) Consult(context.Context, string) (consultdom.Result, error) {
	return f.res, f.err
}

func newAPI(t *testing.T, wf consultdom.WorkflowPort) (*chi.Mux, *fakeRotator) {
	t.Helper()
	p, err := rulepack.Load()
	if err != nil {
		t.Fatalf("load pack: %v", err)
	}
	rot := &fakeRotator{}
	m := chi.NewRouter()
	Mount(m, Deps{
		Gate:     phigate.New(p),
		Rotator:  rot,
		Verifier: fakeVerifier{},
		Consult:  wf,
	}, Options{})
	return m, rot
}

func doJSON(t *testing.T, m http.Handler, method, path, body string) (*httptest.ResponseRecorder, web.Envelope) {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, req)

	var env web.Envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, env
}

func TestAnalyze_ReturnsVerdict(t *testing.T) {
	m, _ := newAPI(t, &fakeWorkflow{})

	rec, env := doJSON(t, m, http.MethodPost, "/api/v1/gate/analyze",
		`{"text":"72歳 連絡先 03-1234-5678"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}

	raw, _ := json.Marshal(env.Data)
	var v phigate.Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode verdict: %v", err)
	}
	if v.Status != phigate.StatusRed || len(v.BlockReasons) == 0 {
		t.Fatalf("verdict %+v", v)
	}
	if strings.Contains(v.RedactedText, "72歳") {
		t.Fatalf("age not redacted: %q", v.RedactedText)
	}
}

func TestAnalyze_ValidationError(t *testing.T) {
	m, _ := newAPI(t, &fakeWorkflow{})
	rec, env := doJSON(t, m, http.MethodPost, "/api/v1/gate/analyze", `{"text":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.Error == "" {
		t.Fatalf("envelope %+v", env)
	}
}

func TestConsult_ErrorStatusesAreDistinct(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{perr.Blockedf("identifying content detected"), http.StatusUnprocessableEntity},
		{perr.Exhaustedf("all credential slots exhausted or disabled"), http.StatusTooManyRequests},
		{perr.Upstreamf("genai upstream status 503"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		m, _ := newAPI(t, &fakeWorkflow{err: tc.err})
		rec, env := doJSON(t, m, http.MethodPost, "/api/v1/consult", `{"text":"発熱"}`)
		if rec.Code != tc.want {
			t.Fatalf("status for %v = %d, want %d", tc.err, rec.Code, tc.want)
		}
		if env.Error == "" {
			t.Fatalf("error envelope %+v", env)
		}
	}
}

func TestConsult_Success(t *testing.T) {
	wf := &fakeWorkflow{res: consultdom.Result{
		Status: "GREEN",
		Report: json.RawMessage(`{"blocked":"none"}`),
		Model:  "test-model",
	}}
	m, _ := newAPI(t, wf)
	rec, env := doJSON(t, m, http.MethodPost, "/api/v1/consult", `{"text":"発熱"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.Data == nil {
		t.Fatalf("envelope %+v", env)
	}
}

func TestVerifyCitations(t *testing.T) {
	m, _ := newAPI(t, &fakeWorkflow{})
	rec, env := doJSON(t, m, http.MethodPost, "/api/v1/citations/verify",
		`{"ids":["31978945","99999999"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	raw, _ := json.Marshal(env.Data)
	var got map[string]bool
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got["31978945"] || got["99999999"] {
		t.Fatalf("results %v", got)
	}
}

func TestCredentials_StatusAndConfigure(t *testing.T) {
	m, rot := newAPI(t, &fakeWorkflow{})

	rec, env := doJSON(t, m, http.MethodGet, "/api/v1/credentials", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	raw, _ := json.Marshal(env.Data)
	var slots []credsdom.SlotStatus
	if err := json.Unmarshal(raw, &slots); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(slots) != credsdom.SlotCount {
		t.Fatalf("slots %v", slots)
	}

	rec, _ = doJSON(t, m, http.MethodPut, "/api/v1/credentials/2", `{"material":"sk-new"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("configure status = %d", rec.Code)
	}
	if rot.configured[2] != "sk-new" {
		t.Fatalf("configured %v", rot.configured)
	}

	rec, _ = doJSON(t, m, http.MethodPut, "/api/v1/credentials/9", `{"material":"x"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad index status = %d", rec.Code)
	}
}

func TestMetaRoutes(t *testing.T) {
	m, _ := newAPI(t, &fakeWorkflow{})

	rec, _ := doJSON(t, m, http.MethodGet, "/meta/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	rec, env := doJSON(t, m, http.MethodGet, "/meta/version", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("version status = %d", rec.Code)
	}
	raw, _ := json.Marshal(env.Data)
	if !strings.Contains(string(raw), "chartguard-api") {
		t.Fatalf("version data %s", raw)
	}
}

func TestRequestIDHeaderOnResponses(t *testing.T) {
	m, _ := newAPI(t, &fakeWorkflow{})
	rec, env := doJSON(t, m, http.MethodGet, "/meta/health", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}
	if env.RequestID == "" {
		t.Fatal("missing request id in envelope")
	}
}
