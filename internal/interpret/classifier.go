package interpret

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"habitvoice/internal/config"
)

const classifyPrompt = `You are a habit tracking assistant. Classify this statement: %q

Known habits: %s

Return strict JSON object:
{"habit":"<one of the known habits, or empty string if none fits>","quantity":<number or null>,"unit":"<unit word or empty>","confidence":<0.0-1.0>}

Only use habit names from the known habits list. If the statement does not
describe any known habit, return an empty habit string.`

// Classification is the semantic collaborator's best guess for one clause.
// It is untrusted: the interpreter caps its confidence regardless of what
// the service reports.
type Classification struct {
	Habit      string   `json:"habit"`
	Quantity   *float64 `json:"quantity"`
	Unit       string   `json:"unit"`
	Confidence float64  `json:"confidence"`
}

// Classifier is the external semantic-classification collaborator. Tests
// replace it with a deterministic stub.
type Classifier interface {
	Classify(ctx context.Context, clause string, knownHabits []string) (*Classification, error)
}

type httpClassifier struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClassifier builds the default classifier over an OpenAI-compatible
// chat-completions endpoint.
func NewClassifier(cfg *config.Config) Classifier {
	return &httpClassifier{
		apiKey:  cfg.Provider.APIKey,
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.Provider.BaseURL), "/"),
		model:   cfg.Provider.Model,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Interpreter.ClassifierTimeoutMs) * time.Millisecond,
		},
	}
}

func (c *httpClassifier) Classify(ctx context.Context, clause string, knownHabits []string) (*Classification, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, fmt.Errorf("missing classifier api key")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("missing classifier base url")
	}

	prompt := fmt.Sprintf(classifyPrompt, clause, strings.Join(knownHabits, ", "))
	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{{
			"role":    "user",
			"content": prompt,
		}},
		"temperature": 0.1,
		"max_tokens":  200,
		"response_format": map[string]string{
			"type": "json_object",
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("classifier http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("empty choices in response")
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	content = stripCodeFence(content)

	var out Classification
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("parse classification: %w", err)
	}
	out.Habit = strings.ToLower(strings.TrimSpace(out.Habit))
	return &out, nil
}

// stripCodeFence tolerates models that wrap JSON in a markdown fence despite
// the json_object response format.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
