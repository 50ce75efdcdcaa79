// Package oracle wraps the external text-understanding service behind an
// OpenAI-compatible chat-completions API. Calls may be slow and may fail;
// callers own the fallback behavior.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/trustedcoder/typira-home/internal/config"
	"github.com/trustedcoder/typira-home/internal/models"
)

// Client talks to the configured Oracle provider. The provider config can be
// swapped at runtime (oracle.json hot reload); all calls read it under lock.
type Client struct {
	mu       sync.RWMutex
	provider config.OracleProvider

	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates an Oracle client for the given provider
func NewClient(provider *config.OracleProvider, timeout time.Duration, requestsPerSecond float64) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}

	return &Client{
		provider:   *provider,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), int(requestsPerSecond*2)),
	}
}

// UpdateProvider swaps the provider configuration. In-flight requests keep
// the config they started with.
func (c *Client) UpdateProvider(provider *config.OracleProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.provider = *provider
	log.Printf("🔄 [ORACLE] Provider config updated (model: %s)", provider.Model)
}

func (c *Client) currentProvider() config.OracleProvider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.provider
}

// chatRequest is the OpenAI-compatible completion request body
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// complete performs a non-streaming completion and returns the first choice.
func (c *Client) complete(ctx context.Context, op string, messages []chatMessage, temperature float64) (string, error) {
	provider := c.currentProvider()
	if provider.BaseURL == "" {
		return "", &Error{Kind: KindUnavailable, Op: op, Err: fmt.Errorf("oracle provider not configured")}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", &Error{Kind: KindUnavailable, Op: op, Err: err}
	}

	reqBody, err := json.Marshal(chatRequest{
		Model:       provider.Model,
		Messages:    messages,
		Stream:      false,
		Temperature: temperature,
	})
	if err != nil {
		return "", &Error{Kind: KindUnavailable, Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", provider.BaseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", &Error{Kind: KindUnavailable, Op: op, Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+provider.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Kind: KindUnavailable, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &Error{Kind: KindUnavailable, Op: op, Err: fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))}
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &Error{Kind: KindMalformed, Op: op, Err: err}
	}

	if len(result.Choices) == 0 {
		return "", &Error{Kind: KindMalformed, Op: op, Err: fmt.Errorf("no choices in response")}
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

const canonicalizePrompt = `Identify the core 'Semantic Intent' of the following sentence.
Rules:
1. Return a single, short, capitalized label (snake_case).
2. Be highly consistent: if the sentence means the same thing, the label must be EXACTLY the same.
3. Remove specific fluff (e.g. "I want to eat rice" -> EAT_RICE, "I'm eating rice" -> EAT_RICE).
4. For general chat, return a simple summary (e.g. GREETING).

Sentence: "%s"

Canonical Label:`

// Canonicalize reduces a sentence to a short canonical intent label. Two
// semantically identical sentences must come back with the same label.
func (c *Client) Canonicalize(ctx context.Context, sentence string) (string, error) {
	content, err := c.complete(ctx, "canonicalize", []chatMessage{
		{Role: "user", Content: fmt.Sprintf(canonicalizePrompt, sentence)},
	}, 0)
	if err != nil {
		return "", err
	}

	label := NormalizeLabel(content)
	if label == "" {
		return "", &Error{Kind: KindMalformed, Op: "canonicalize", Err: fmt.Errorf("empty label")}
	}

	return label, nil
}

// NormalizeLabel collapses label formatting so casing and whitespace
// variations don't fragment intent identity.
func NormalizeLabel(label string) string {
	label = strings.ToUpper(strings.TrimSpace(label))
	label = strings.ReplaceAll(label, " ", "_")
	label = strings.ReplaceAll(label, `"`, "")
	return label
}

// InsightRequest carries the assembled user context for a scheduled firing
type InsightRequest struct {
	ActionDescription string
	History           []string // recent typing fragments, most recent first
	Memories          []string
	Actions           []string // recent approve/decline decisions
	Now               time.Time
}

const scheduledInsightPrompt = `You are Typira, my personal assistant. This is a SCHEDULED moment for an insight.
CURRENT TIME: %s

MY TYPING HISTORY:
%s

MY PERSISTENT MEMORIES:
%s

MY RECENT ACTIONS:
%s

SCHEDULED ACTION: "%s"

INSTRUCTIONS:
1. If the 'SCHEDULED ACTION' is provided, perform it with high precision.
2. If it is empty, find the most important or insightful thing to tell me right now.
3. Relate EVERYTHING to ME personally. Why does this matter given my history or memories?

OUTPUT FORMAT (Strict JSON):
{
  "title": "Short title for the insight (3-4 words)",
  "short_description": "2-sentence summary for the push notification body.",
  "full_formatted_result": "Detailed, markdown-formatted full findings to be stored in my memory."
}

Return ONLY the JSON object. BE INSIGHTFUL and PERSONAL.`

// genericInstruction replaces an empty action description
const genericInstruction = "Find the most insightful and personally relevant thing to tell me right now."

// GenerateScheduledInsight asks the Oracle to produce a personalized insight
// from the schedule's instruction plus the user's accumulated context. The
// response must decode into the strict result shape or the call fails with a
// malformed error - unvalidated fields are never passed through.
func (c *Client) GenerateScheduledInsight(ctx context.Context, req *InsightRequest) (*models.GeneratedInsight, error) {
	action := strings.TrimSpace(req.ActionDescription)
	if action == "" {
		action = genericInstruction
	}

	prompt := fmt.Sprintf(scheduledInsightPrompt,
		req.Now.Format("2006-01-02 15:04:05"),
		contextBlock(req.History),
		contextBlock(req.Memories),
		contextBlock(req.Actions),
		action,
	)

	content, err := c.complete(ctx, "generate", []chatMessage{
		{Role: "user", Content: prompt},
	}, 0.7)
	if err != nil {
		return nil, err
	}

	insight, err := DecodeInsight(content)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Op: "generate", Err: err}
	}

	return insight, nil
}

// DecodeInsight parses the Oracle's JSON output, tolerating markdown code
// fences around the object but nothing else.
func DecodeInsight(content string) (*models.GeneratedInsight, error) {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var insight models.GeneratedInsight
	if err := json.Unmarshal([]byte(cleaned), &insight); err != nil {
		return nil, fmt.Errorf("failed to decode insight JSON: %w", err)
	}

	if insight.Title == "" || insight.ShortDescription == "" {
		return nil, fmt.Errorf("insight missing required fields")
	}

	return &insight, nil
}

func contextBlock(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return "- " + strings.Join(items, "\n- ")
}
