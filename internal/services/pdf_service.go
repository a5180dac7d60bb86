package services

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// LoadDocumentText produces the best-effort plain-text dump handed to the
// extraction backend. PDFs go through a text extraction pass; plain formats
// are read as-is. An unsupported extension is an invalid_request failure,
// since no amount of retrying will make the file readable.
func LoadDocumentText(storagePath string) (string, error) {
	switch strings.ToLower(filepath.Ext(storagePath)) {
	case ".pdf":
		return extractPDFText(storagePath)
	case ".txt", ".md", ".json":
		data, err := os.ReadFile(storagePath)
		if err != nil {
			return "", fmt.Errorf("failed to read document %s: %w", storagePath, err)
		}
		return string(data), nil
	}
	return "", &GatewayError{
		HTTPStatus: http.StatusBadRequest,
		Message:    fmt.Sprintf("unsupported file extension on %s", filepath.Base(storagePath)),
	}
}

func extractPDFText(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", &GatewayError{
			HTTPStatus: http.StatusBadRequest,
			Message:    fmt.Sprintf("failed to open PDF: %v", err),
		}
	}
	defer f.Close()

	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", &GatewayError{
			HTTPStatus: http.StatusBadRequest,
			Message:    fmt.Sprintf("failed to extract PDF text: %v", err),
		}
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, textReader); err != nil {
		return "", fmt.Errorf("failed to drain PDF text: %w", err)
	}
	return buf.String(), nil
}
