package services

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/discloseaudit/backend/internal/models"
)

func TestLoadDocumentTextPlainFormats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.txt")
	if err := os.WriteFile(path, []byte("年度报告全文"), 0644); err != nil {
		t.Fatal(err)
	}

	text, err := LoadDocumentText(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "年度报告全文" {
		t.Errorf("unexpected text: %q", text)
	}
}

func TestLoadDocumentTextRejectsUnknownExtension(t *testing.T) {
	_, err := LoadDocumentText("uploads/report.docx")
	if err == nil {
		t.Fatal("expected an error for an unsupported extension")
	}

	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) || gatewayErr.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("expected a 400 gateway error, got %v", err)
	}
	if ClassifyFailure(err) != models.ErrorCodeInvalidRequest {
		t.Error("an unreadable input must classify as invalid_request")
	}
}

func TestLoadDocumentTextMissingFile(t *testing.T) {
	_, err := LoadDocumentText(filepath.Join(t.TempDir(), "gone.txt"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
