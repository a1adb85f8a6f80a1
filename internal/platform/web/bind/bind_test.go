package bind

import (
	"net/http/httptest"
	"strings"
	"testing"

	perr "chartguard/internal/platform/errors"
)

type analyzeReq struct {
	Text string `json:"text" validate:"required,max=50"`
}

func TestParseJSON_Valid(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"text":"hello"}`))
	got, err := ParseJSON[analyzeReq](r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Text != "hello" {
		t.Fatalf("text = %q", got.Text)
	}
}

func TestParseJSON_EmptyBody(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(""))
	if _, err := ParseJSON[analyzeReq](r); !perr.IsCode(err, perr.ErrorCodeJSON) {
		t.Fatalf("want JSON error, got %v", err)
	}
}

func TestParseJSON_UnknownField(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"text":"x","bogus":1}`))
	if _, err := ParseJSON[analyzeReq](r); !perr.IsCode(err, perr.ErrorCodeJSON) {
		t.Fatalf("want JSON error, got %v", err)
	}
}

func TestParseJSON_TrailingData(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"text":"x"}{"text":"y"}`))
	if _, err := ParseJSON[analyzeReq](r); !perr.IsCode(err, perr.ErrorCodeJSON) {
		t.Fatalf("want JSON error, got %v", err)
	}
}

func TestParseJSON_ValidationUsesJSONTagName(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"text":""}`))
	_, err := ParseJSON[analyzeReq](r)
	if !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "text") {
		t.Fatalf("message should name the json field: %v", err)
	}
}

func TestParseJSON_MaxBytes(t *testing.T) {
	long := strings.Repeat("a", 128)
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"text":"`+long+`"}`))
	if _, err := ParseJSON[analyzeReq](r, JSONOptions{MaxBytes: 16, DisallowUnknown: true}); err == nil {
		t.Fatal("want error for truncated body")
	}
}
