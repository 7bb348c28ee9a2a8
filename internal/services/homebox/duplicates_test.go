package homebox

import (
	"context"
	"net/http"
	"strings"
	"testing"
)

type staticTokens string

func (s staticTokens) Token(context.Context) (string, error) { return string(s), nil }

func TestDuplicateCheckerMatchesNormalizedSerial(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/items":
			if q := r.URL.Query().Get("q"); q != "AB-12" {
				t.Fatalf("expected normalized query, got %q", q)
			}
			_, _ = w.Write([]byte(`{"items":[{"id":"x1"},{"id":"x2"}]}`))
		case strings.HasSuffix(r.URL.Path, "/x1"):
			_, _ = w.Write([]byte(`{"id":"x1","name":"Other","serialNumber":"AB-123"}`))
		case strings.HasSuffix(r.URL.Path, "/x2"):
			_, _ = w.Write([]byte(`{"id":"x2","name":"Router","serialNumber":" ab-12 ","location":{"id":"l","name":"Office"}}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	checker := NewDuplicateChecker(client, staticTokens("tok"), nil)
	match, err := checker.CheckSerial(context.Background(), " ab-12")
	if err != nil {
		t.Fatalf("CheckSerial returned error: %v", err)
	}
	if match == nil || match.ItemID != "x2" || match.LocationName != "Office" {
		t.Fatalf("unexpected match %+v", match)
	}
}

func TestDuplicateCheckerSkipsBlankSerial(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s", r.URL.Path)
	})
	match, err := NewDuplicateChecker(client, staticTokens("tok"), nil).CheckSerial(context.Background(), "   ")
	if err != nil || match != nil {
		t.Fatalf("expected no match, got %+v, %v", match, err)
	}
}

func TestDuplicateCheckerSearchFailureIsNotFatal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	match, err := NewDuplicateChecker(client, staticTokens("tok"), nil).CheckSerial(context.Background(), "SN")
	if err != nil || match != nil {
		t.Fatalf("expected silent miss, got %+v, %v", match, err)
	}
}
