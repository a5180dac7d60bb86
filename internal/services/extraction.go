package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/discloseaudit/backend/internal/models"
)

// ExtractionProvider is the uniform capability every extraction backend
// offers: turn a plain-text document dump into a structured document, or
// fail with a classifiable error. Backend selection is static per
// deployment; the provider itself holds no per-call state.
type ExtractionProvider interface {
	Name() string
	Model() string
	Extract(ctx context.Context, documentText string) (*models.StructuredDocument, error)
}

// GatewayError carries enough of a backend failure to classify it into the
// job error taxonomy. It never crosses the job engine boundary; jobs record
// the classified code instead.
type GatewayError struct {
	HTTPStatus int
	Message    string
}

func (e *GatewayError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("extraction backend returned HTTP %d: %s", e.HTTPStatus, e.Message)
	}
	return e.Message
}

// ClassifyFailure maps an extraction failure onto the closed error-code
// taxonomy recorded on job rows.
func ClassifyFailure(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.ErrorCodeTimeout
	}

	message := err.Error()
	var gatewayErr *GatewayError
	if errors.As(err, &gatewayErr) {
		switch gatewayErr.HTTPStatus {
		case http.StatusTooManyRequests:
			return models.ErrorCodeQuotaExceeded
		case http.StatusBadRequest:
			return models.ErrorCodeInvalidRequest
		}
		message = gatewayErr.Message
	}

	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") || strings.Contains(lower, "timed out"):
		return models.ErrorCodeTimeout
	case strings.Contains(lower, "connection reset") || strings.Contains(lower, "econnreset") || strings.Contains(lower, "broken pipe"):
		return models.ErrorCodeNetworkReset
	case strings.Contains(lower, "quota") || strings.Contains(lower, "rate limit"):
		return models.ErrorCodeQuotaExceeded
	}
	return models.ErrorCodeUnknown
}

// RetryableErrorCode reports whether a job failing with the given code may
// be re-attempted. invalid_request means the input itself is defective, so
// retrying can only burn quota.
func RetryableErrorCode(code string) bool {
	switch code {
	case models.ErrorCodeQuotaExceeded, models.ErrorCodeTimeout, models.ErrorCodeNetworkReset, models.ErrorCodeUnknown:
		return true
	}
	return false
}

// NewExtractionProvider builds the deployment's configured backend.
// providerName/modelName override the LLM_PROVIDER / LLM_MODEL environment
// defaults; an empty provider falls back to the stub.
func NewExtractionProvider(providerName, modelName string) (ExtractionProvider, error) {
	if providerName == "" {
		providerName = strings.ToLower(os.Getenv("LLM_PROVIDER"))
	}
	if modelName == "" {
		modelName = os.Getenv("LLM_MODEL")
	}

	switch providerName {
	case "", "stub":
		return NewStubProvider(), nil
	case "gemini":
		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
		if modelName == "" {
			modelName = "gemini-2.5-flash"
		}
		return NewGeminiProvider(apiKey, modelName), nil
	case "glm":
		apiKey := os.Getenv("GLM_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("GLM_API_KEY is required for the glm provider")
		}
		apiURL := os.Getenv("GLM_API_URL")
		if apiURL == "" {
			apiURL = "https://open.bigmodel.cn/api/paas/v4/chat/completions"
		}
		if modelName == "" {
			modelName = "glm-4-flash"
		}
		return NewGLMProvider(apiKey, apiURL, modelName), nil
	}
	return nil, fmt.Errorf("unsupported extraction provider %q", providerName)
}

// FallbackProvider returns the backend used on a job's second attempt, if
// one is configured. Returns nil when no fallback is set.
func FallbackProvider() ExtractionProvider {
	name := strings.ToLower(os.Getenv("LLM_FALLBACK_PROVIDER"))
	if name == "" {
		return nil
	}
	provider, err := NewExtractionProvider(name, os.Getenv("LLM_FALLBACK_MODEL"))
	if err != nil {
		return nil
	}
	return provider
}

func newExtractionHTTPClient() *http.Client {
	// Generous ceiling; the per-job context carries the real deadline.
	return &http.Client{Timeout: 10 * time.Minute}
}

// stripJSONFences removes markdown code fences models habitually wrap
// around JSON output.
func stripJSONFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```JSON", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// decodeDocument parses and validates a backend's raw text response.
// Schema-invalid output is an invalid_request failure, never silently
// accepted.
func decodeDocument(raw string) (*models.StructuredDocument, error) {
	cleaned := stripJSONFences(raw)

	var doc models.StructuredDocument
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, &GatewayError{
			HTTPStatus: http.StatusBadRequest,
			Message:    fmt.Sprintf("backend response is not valid JSON: %v", err),
		}
	}

	if err := doc.Validate(); err != nil {
		return nil, &GatewayError{
			HTTPStatus: http.StatusBadRequest,
			Message:    fmt.Sprintf("backend response failed schema validation: %v", err),
		}
	}
	return &doc, nil
}
