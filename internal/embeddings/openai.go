package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"docsync/internal/logging"
)

// DefaultEmbeddingModel is the default OpenAI embedding model.
const DefaultEmbeddingModel = "text-embedding-3-small"

// OpenAIConfig configures the OpenAI-backed capability.
type OpenAIConfig struct {
	APIKey  string        `json:"-"`
	BaseURL string        `json:"base_url"`
	Model   string        `json:"model"`
	Timeout time.Duration `json:"timeout"`
}

// DefaultOpenAIConfig returns sensible defaults.
func DefaultOpenAIConfig() *OpenAIConfig {
	return &OpenAIConfig{
		BaseURL: "https://api.openai.com/v1",
		Model:   DefaultEmbeddingModel,
		Timeout: 30 * time.Second,
	}
}

// OpenAIClient implements Capability against the OpenAI API. Network and
// server errors surface as ErrUnavailable so the analyzer can degrade.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     logging.Logger
}

// NewOpenAIClient creates an OpenAI-backed capability client.
func NewOpenAIClient(cfg *OpenAIConfig, logger logging.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIConfig().BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.WithComponent("embeddings.openai"),
	}, nil
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Similarity embeds both texts in one batch request and returns their
// cosine similarity mapped into [0,1].
func (c *OpenAIClient) Similarity(ctx context.Context, textA, textB string) (float64, error) {
	if strings.TrimSpace(textA) == "" || strings.TrimSpace(textB) == "" {
		return 0, fmt.Errorf("similarity inputs cannot be empty")
	}

	reqBody := embeddingRequest{Input: []string{textA, textB}, Model: c.model}
	var resp embeddingResponse
	if err := c.post(ctx, "/embeddings", reqBody, &resp); err != nil {
		return 0, err
	}
	if len(resp.Data) != 2 {
		return 0, fmt.Errorf("%w: expected 2 embeddings, got %d", ErrUnavailable, len(resp.Data))
	}

	// The API may return results out of order; index is authoritative.
	vectors := make([][]float64, 2)
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index > 1 {
			return 0, fmt.Errorf("%w: unexpected embedding index %d", ErrUnavailable, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}

	cos, err := cosineSimilarity(vectors[0], vectors[1])
	if err != nil {
		return 0, err
	}
	// Cosine lands in [-1,1]; severity thresholds expect [0,1].
	return (cos + 1) / 2, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const intentPrompt = `You compare two versions of the same document. Reply with JSON only:
{"preserved": bool, "confidence": 0..1, "contradiction": bool}
"contradiction" is true only if the versions assert opposite conclusions.`

// AnalyzeIntent asks the language backend whether the edit preserved intent.
func (c *OpenAIClient) AnalyzeIntent(ctx context.Context, textA, textB string) (*IntentResult, error) {
	reqBody := chatRequest{
		Model: "gpt-4o-mini",
		Messages: []chatMessage{
			{Role: "system", Content: intentPrompt},
			{Role: "user", Content: fmt.Sprintf("Version A:\n%s\n\nVersion B:\n%s", textA, textB)},
		},
		Temperature: 0,
	}

	var resp chatResponse
	if err := c.post(ctx, "/chat/completions", reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", ErrUnavailable)
	}

	var result IntentResult
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.Trim(content, "` \n")
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("%w: unparseable intent response: %v", ErrUnavailable, err)
	}
	return &result, nil
}

// HealthCheck verifies the API with a minimal embedding request.
func (c *OpenAIClient) HealthCheck(ctx context.Context) error {
	var resp embeddingResponse
	return c.post(ctx, "/embeddings", embeddingRequest{Input: []string{"ping"}, Model: c.model}, &resp)
}

func (c *OpenAIClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.WarnContext(ctx, "openai request failed", "status", resp.StatusCode, "path", path)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
			return fmt.Errorf("openai request rejected with status %d", resp.StatusCode)
		}
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: unparseable response: %v", ErrUnavailable, err)
	}
	return nil
}

func cosineSimilarity(a, b []float64) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("%w: embedding dimension mismatch", ErrUnavailable)
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
