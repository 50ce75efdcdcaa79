package oracle

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/trustedcoder/typira-home/internal/config"
)

func newTestClient(baseURL string) *Client {
	provider := &config.OracleProvider{BaseURL: baseURL, APIKey: "test-key", Model: "test-model"}
	return NewClient(provider, 5*time.Second, 100)
}

// chatResponse wraps content in the chat-completions envelope
func chatResponse(content string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"content":%s}}]}`, strconv.Quote(content))
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already canonical", "EAT_RICE", "EAT_RICE"},
		{"lowercase", "eat_rice", "EAT_RICE"},
		{"spaces collapse to underscores", "eat rice", "EAT_RICE"},
		{"quotes stripped", `"EAT_RICE"`, "EAT_RICE"},
		{"surrounding whitespace", "  greeting \n", "GREETING"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeLabel(tt.input); got != tt.want {
				t.Errorf("NormalizeLabel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDecodeInsight(t *testing.T) {
	t.Run("plain JSON", func(t *testing.T) {
		insight, err := DecodeInsight(`{"title":"Morning Update","short_description":"Two sentences.","full_formatted_result":"# Findings"}`)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if insight.Title != "Morning Update" {
			t.Errorf("Expected title 'Morning Update', got %q", insight.Title)
		}
		if insight.FullResult != "# Findings" {
			t.Errorf("Expected full result preserved, got %q", insight.FullResult)
		}
	})

	t.Run("fenced JSON", func(t *testing.T) {
		insight, err := DecodeInsight("```json\n{\"title\":\"T\",\"short_description\":\"D\",\"full_formatted_result\":\"R\"}\n```")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if insight.Title != "T" {
			t.Errorf("Expected title 'T', got %q", insight.Title)
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		if _, err := DecodeInsight("I could not produce JSON today"); err == nil {
			t.Error("Expected error for non-JSON payload")
		}
	})

	t.Run("missing required fields", func(t *testing.T) {
		if _, err := DecodeInsight(`{"full_formatted_result":"only this"}`); err == nil {
			t.Error("Expected error when title and description are absent")
		}
	})
}

func TestCanonicalizeOverHTTP(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, chatResponse("eat rice"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	label, err := client.Canonicalize(context.Background(), "I want to eat rice")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if label != "EAT_RICE" {
		t.Errorf("Expected normalized label EAT_RICE, got %q", label)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("Expected /chat/completions, got %q", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Expected bearer auth header, got %q", gotAuth)
	}
}

func TestCanonicalizeTransportErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
		kind   string
	}{
		{"server error is unavailable", http.StatusInternalServerError, "overloaded", IsUnavailable, "unavailable"},
		{"rate limited is unavailable", http.StatusTooManyRequests, "slow down", IsUnavailable, "unavailable"},
		{"garbage body is malformed", http.StatusOK, "not json at all", IsMalformed, "malformed"},
		{"empty choices is malformed", http.StatusOK, `{"choices":[]}`, IsMalformed, "malformed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).Canonicalize(context.Background(), "hello there")
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !tt.check(err) {
				t.Errorf("Expected %s error, got %v", tt.kind, err)
			}
		})
	}
}

func TestCanonicalizeUnconfiguredProvider(t *testing.T) {
	client := newTestClient("")
	_, err := client.Canonicalize(context.Background(), "hello")
	if !IsUnavailable(err) {
		t.Errorf("Expected unavailable error for missing provider, got %v", err)
	}
}

func TestGenerateScheduledInsightOverHTTP(t *testing.T) {
	t.Run("fenced JSON decodes", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, chatResponse("```json\n{\"title\":\"Morning Update\",\"short_description\":\"Two sentences.\",\"full_formatted_result\":\"# Findings\"}\n```"))
		}))
		defer server.Close()

		insight, err := newTestClient(server.URL).GenerateScheduledInsight(context.Background(), &InsightRequest{
			ActionDescription: "Summarize my week",
			Now:               time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if insight.Title != "Morning Update" {
			t.Errorf("Expected decoded title, got %q", insight.Title)
		}
	})

	t.Run("prose reply is malformed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, chatResponse("Sorry, I cannot produce JSON today."))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).GenerateScheduledInsight(context.Background(), &InsightRequest{
			Now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		})
		if !IsMalformed(err) {
			t.Errorf("Expected malformed error for prose reply, got %v", err)
		}
	})
}

func TestErrorKinds(t *testing.T) {
	unavailable := &Error{Kind: KindUnavailable, Op: "canonicalize"}
	malformed := &Error{Kind: KindMalformed, Op: "generate"}

	if !IsUnavailable(unavailable) || IsUnavailable(malformed) {
		t.Error("IsUnavailable misclassified error kind")
	}
	if !IsMalformed(malformed) || IsMalformed(unavailable) {
		t.Error("IsMalformed misclassified error kind")
	}
}
