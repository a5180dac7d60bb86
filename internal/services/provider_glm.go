package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/discloseaudit/backend/internal/models"
)

// GLMProvider calls an OpenAI-compatible chat-completions endpoint.
type GLMProvider struct {
	apiKey string
	apiURL string
	model  string
	client *http.Client
}

func NewGLMProvider(apiKey, apiURL, model string) *GLMProvider {
	return &GLMProvider{
		apiKey: apiKey,
		apiURL: apiURL,
		model:  model,
		client: newExtractionHTTPClient(),
	}
}

func (p *GLMProvider) Name() string {
	return "glm"
}

func (p *GLMProvider) Model() string {
	return p.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *GLMProvider) Extract(ctx context.Context, documentText string) (*models.StructuredDocument, error) {
	reqBody := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: BuildSystemInstruction()},
			{Role: "user", Content: documentText},
		},
		Temperature: 0,
		Stream:      false,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &GatewayError{HTTPStatus: resp.StatusCode, Message: string(body)}
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &GatewayError{HTTPStatus: http.StatusBadRequest, Message: fmt.Sprintf("unparseable chat response: %v", err)}
	}
	if decoded.Error != nil {
		return nil, &GatewayError{HTTPStatus: http.StatusBadRequest, Message: decoded.Error.Message}
	}
	if len(decoded.Choices) == 0 {
		return nil, &GatewayError{HTTPStatus: http.StatusBadRequest, Message: "backend returned no choices"}
	}

	return decodeDocument(decoded.Choices[0].Message.Content)
}
