package gemini

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"

	"github.com/Duelion/homebox-companion-sub001/internal/services"
	"github.com/Duelion/homebox-companion-sub001/internal/services/retry"
)

func TestExtractTextJoinsTextParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"items":`), genai.Text(`[]}`)}},
		}},
	}
	text, err := extractText(resp)
	if err != nil {
		t.Fatalf("extractText returned error: %v", err)
	}
	if text != `{"items":[]}` {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractTextEmptyIsRetryable(t *testing.T) {
	_, err := extractText(&genai.GenerateContentResponse{})
	var marked retry.Retryable
	if !errors.As(err, &marked) || !marked.Retryable() {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestClassifyMapsAPIErrors(t *testing.T) {
	err := classify(&googleapi.Error{Code: http.StatusServiceUnavailable, Message: "overloaded"})
	var statusErr *retry.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected status error, got %v", err)
	}

	err = classify(&googleapi.Error{Code: http.StatusForbidden, Message: "bad key"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{Model: "gemini-1.5-flash"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
