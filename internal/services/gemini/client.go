// Package gemini adapts Google's Gemini models to the vision completion
// interface used by the detector and corrector.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Duelion/homebox-companion-sub001/internal/services"
	"github.com/Duelion/homebox-companion-sub001/internal/services/llm"
	"github.com/Duelion/homebox-companion-sub001/internal/services/retry"
)

const defaultTimeout = 120 * time.Second

// Config captures the Gemini connection settings.
type Config struct {
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// Client issues JSON-mode vision requests to Gemini.
type Client struct {
	cfg     Config
	client  *genai.Client
	retry   retry.Policy
	timeout time.Duration
}

// NewClient dials Gemini with the configured API key. Extra client options
// are appended after the key.
func NewClient(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.APIKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "vision", "gemini", "api key required", nil)
	}
	if cfg.Model == "" {
		return nil, services.Wrap(services.ErrConfiguration, "vision", "gemini", "model required", nil)
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{cfg: cfg, client: client, retry: retry.DefaultPolicy(), timeout: timeout}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// CompleteVisionJSON sends the prompts and images and returns the model's JSON text.
func (c *Client) CompleteVisionJSON(ctx context.Context, systemPrompt, userPrompt string, images []llm.Image) (string, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return "", errors.New("gemini complete: user prompt required")
	}
	model := c.client.GenerativeModel(c.cfg.Model)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"
	if systemPrompt = strings.TrimSpace(systemPrompt); systemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}

	parts := make([]genai.Part, 0, len(images)+1)
	parts = append(parts, genai.Text(userPrompt))
	for _, img := range images {
		mime := img.MimeType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, genai.Blob{MIMEType: mime, Data: img.Data})
	}

	var content string
	err := c.retry.Do(ctx, "gemini complete", func(ctx context.Context, attempt int) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		resp, err := model.GenerateContent(callCtx, parts...)
		if err != nil {
			return classify(err)
		}
		text, err := extractText(resp)
		if err != nil {
			return err
		}
		content = text
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

type emptyResponseError struct{ reason string }

func (e *emptyResponseError) Error() string {
	return "gemini complete: empty response (" + e.reason + ")"
}

func (e *emptyResponseError) Retryable() bool { return true }

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &emptyResponseError{reason: "no candidates"}
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", &emptyResponseError{reason: fmt.Sprintf("finish_reason=%v", candidate.FinishReason)}
	}
	var builder strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			builder.WriteString(string(txt))
		}
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", &emptyResponseError{reason: "no text parts"}
	}
	return text, nil
}

// classify maps googleapi errors onto the shared retry status error so
// 429 and 5xx responses back off like the other integrations.
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		statusErr := &retry.StatusError{Service: "gemini", StatusCode: apiErr.Code, Body: apiErr.Message}
		if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden {
			return services.Wrap(services.ErrConfiguration, "vision", "gemini", "api key rejected", statusErr)
		}
		return statusErr
	}
	return fmt.Errorf("gemini request: %w", err)
}
