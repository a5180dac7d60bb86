package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/discloseaudit/backend/internal/models"
)

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"deadline exceeded", context.DeadlineExceeded, models.ErrorCodeTimeout},
		{"canceled", context.Canceled, models.ErrorCodeTimeout},
		{"wrapped deadline", fmt.Errorf("extract: %w", context.DeadlineExceeded), models.ErrorCodeTimeout},
		{"http 429", &GatewayError{HTTPStatus: http.StatusTooManyRequests, Message: "slow down"}, models.ErrorCodeQuotaExceeded},
		{"http 400", &GatewayError{HTTPStatus: http.StatusBadRequest, Message: "bad schema"}, models.ErrorCodeInvalidRequest},
		{"http 500 with quota text", &GatewayError{HTTPStatus: http.StatusInternalServerError, Message: "quota exhausted"}, models.ErrorCodeQuotaExceeded},
		{"connection reset", errors.New("read tcp: connection reset by peer"), models.ErrorCodeNetworkReset},
		{"econnreset", errors.New("ECONNRESET while reading body"), models.ErrorCodeNetworkReset},
		{"broken pipe", errors.New("write: broken pipe"), models.ErrorCodeNetworkReset},
		{"io timeout", errors.New("dial tcp: i/o timeout"), models.ErrorCodeTimeout},
		{"rate limit text", errors.New("rate limit reached for requests"), models.ErrorCodeQuotaExceeded},
		{"anything else", errors.New("boom"), models.ErrorCodeUnknown},
	}

	for _, tt := range tests {
		if code := ClassifyFailure(tt.err); code != tt.code {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.code, code)
		}
	}
}

func TestRetryableErrorCode(t *testing.T) {
	retryable := []string{
		models.ErrorCodeQuotaExceeded,
		models.ErrorCodeTimeout,
		models.ErrorCodeNetworkReset,
		models.ErrorCodeUnknown,
	}
	for _, code := range retryable {
		if !RetryableErrorCode(code) {
			t.Errorf("expected %s to be retryable", code)
		}
	}

	// A defective input stays defective no matter how often it is resent.
	if RetryableErrorCode(models.ErrorCodeInvalidRequest) {
		t.Error("invalid_request must never be retried")
	}
	if RetryableErrorCode("") {
		t.Error("empty code must not be retryable")
	}
}

func TestStripJSONFences(t *testing.T) {
	tests := []struct {
		in  string
		out string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```JSON\n{}\n```", "{}"},
		{"  {\"a\":1}  ", `{"a":1}`},
		{"```\n[]\n```", "[]"},
	}
	for _, tt := range tests {
		if got := stripJSONFences(tt.in); got != tt.out {
			t.Errorf("stripJSONFences(%q) = %q, expected %q", tt.in, got, tt.out)
		}
	}
}

func TestDecodeDocument(t *testing.T) {
	raw := "```json\n" + `{
		"sections": [
			{"title": "一、总体情况", "type": "text", "content": "全年情况说明"},
			{"title": "三、收到和处理政府信息公开申请情况", "type": "table_3", "tableData": {"total": {"newReceived": 5}}}
		]
	}` + "\n```"

	doc, err := decodeDocument(raw)
	if err != nil {
		t.Fatalf("expected fenced JSON to decode, got %v", err)
	}
	if len(doc.Sections) != 2 {
		t.Errorf("expected 2 sections, got %d", len(doc.Sections))
	}

	value, ok := doc.LookupPath("table_3.total.newReceived")
	if !ok || value != float64(5) {
		t.Errorf("expected table cell to survive decoding, got %v (ok=%v)", value, ok)
	}
}

func TestDecodeDocumentRejectsGarbage(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", "the model apologizes instead of answering"},
		{"no sections", `{"sections": []}`},
		{"table without payload", `{"sections": [{"title": "三、", "type": "table_3"}]}`},
	}

	for _, tt := range cases {
		_, err := decodeDocument(tt.raw)
		if err == nil {
			t.Errorf("%s: expected decode to fail", tt.name)
			continue
		}
		var gatewayErr *GatewayError
		if !errors.As(err, &gatewayErr) || gatewayErr.HTTPStatus != http.StatusBadRequest {
			t.Errorf("%s: expected a 400 gateway error, got %v", tt.name, err)
		}
		if ClassifyFailure(err) != models.ErrorCodeInvalidRequest {
			t.Errorf("%s: schema failures must classify as invalid_request", tt.name)
		}
	}
}

func TestStubProviderExtract(t *testing.T) {
	provider := NewStubProvider()

	doc, err := provider.Extract(context.Background(), "报告全文")
	if err != nil {
		t.Fatalf("stub extraction failed: %v", err)
	}
	if err := doc.Validate(); err != nil {
		t.Fatalf("stub document failed validation: %v", err)
	}

	for _, sectionType := range []string{models.SectionDisclosureTable, models.SectionRequestTable, models.SectionReviewTable} {
		if !doc.HasSection(sectionType) {
			t.Errorf("stub document missing section %s", sectionType)
		}
	}

	// Deterministic for a given input.
	again, err := provider.Extract(context.Background(), "报告全文")
	if err != nil {
		t.Fatalf("second stub extraction failed: %v", err)
	}
	if doc.Sections[0].Content != again.Sections[0].Content {
		t.Error("stub extraction should be deterministic for the same input")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := provider.Extract(ctx, "x"); err == nil {
		t.Error("expected canceled context to abort extraction")
	}
}

func TestNewExtractionProviderDefaultsToStub(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("GEMINI_API_KEY", "")

	provider, err := NewExtractionProvider("", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Name() != "stub" {
		t.Errorf("expected stub provider, got %s", provider.Name())
	}

	if _, err := NewExtractionProvider("gemini", ""); err == nil {
		t.Error("expected gemini without GEMINI_API_KEY to fail")
	}
	if _, err := NewExtractionProvider("carrier-pigeon", ""); err == nil {
		t.Error("expected unsupported provider to fail")
	}
}
