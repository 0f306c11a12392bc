package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"git.home.luguber.info/inful/appforge/internal/config"
	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
	"git.home.luguber.info/inful/appforge/internal/logfields"
)

// Adapter produces a file set for one run.
type Adapter interface {
	Generate(ctx context.Context, in Input) (FileSet, error)
}

// GeminiClient calls the Gemini generateContent REST endpoint.
type GeminiClient struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	model      string
}

var _ Adapter = (*GeminiClient)(nil)

// NewGeminiClient creates a client from generation settings.
func NewGeminiClient(cfg config.GenerationConfig) *GeminiClient {
	return &GeminiClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		apiURL:     strings.TrimSuffix(cfg.APIURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Generate builds the prompt, calls the model once and parses its reply.
// The returned file set is not validated.
func (c *GeminiClient) Generate(ctx context.Context, in Input) (FileSet, error) {
	prompt := BuildPrompt(in)

	var body geminiRequest
	body.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}
	body.GenerationConfig.ResponseMimeType = "application/json"
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, derrors.GenerationError("failed to encode generation request").WithCause(err).Build()
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.apiURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, derrors.GenerationError("failed to create generation request").WithCause(err).Build()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	started := time.Now()
	slog.Debug("Calling generation model", slog.String("model", c.model), slog.Int("prompt_bytes", len(prompt)))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, derrors.NetworkError("generation request failed").WithCause(err).Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		limited, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, derrors.GenerationError(fmt.Sprintf("generation API error: %s", resp.Status)).
			WithContext("code", resp.StatusCode).
			WithContext("response", strings.ReplaceAll(string(limited), "\n", " ")).
			Build()
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, derrors.GenerationError("failed to decode generation response").WithCause(err).Build()
	}
	if out.PromptFeedback.BlockReason != "" {
		return nil, derrors.GenerationError("prompt was blocked").
			WithContext("reason", out.PromptFeedback.BlockReason).Build()
	}
	if len(out.Candidates) == 0 {
		return nil, derrors.GenerationError("generation response had no candidates").Build()
	}

	var text strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	slog.Debug("Generation model replied",
		slog.String("model", c.model),
		slog.String("finish_reason", out.Candidates[0].FinishReason),
		logfields.DurationMS(float64(time.Since(started).Milliseconds())))

	return ParseResponse(text.String())
}
