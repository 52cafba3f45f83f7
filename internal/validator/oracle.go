package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/templui/goalstake/internal/model"
	"github.com/tidwall/gjson"
)

const oracleSystemPrompt = `You verify whether a person achieved a goal they staked money on.
You receive the goal, its deadline and the person's proof (text and optionally an image).
Answer with a JSON object: {"verdict": "approve" | "reject" | "needs_review", "confidence": 0-100, "reasoning": "<one or two sentences>"}.
Use needs_review when the proof is ambiguous or the image cannot be assessed.`

type OracleConfig struct {
	URL           string
	APIKey        string
	Model         string
	MinConfidence int
	HTTPClient    *http.Client
}

// OracleValidator asks an OpenAI-compatible chat completion endpoint for a verdict.
type OracleValidator struct {
	url           string
	apiKey        string
	model         string
	minConfidence int
	client        *http.Client
}

func NewOracleValidator(cfg OracleConfig) *OracleValidator {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &OracleValidator{
		url:           cfg.URL,
		apiKey:        cfg.APIKey,
		model:         cfg.Model,
		minConfidence: cfg.MinConfidence,
		client:        client,
	}
}

func (o *OracleValidator) Name() string { return ProviderOracle }

func (o *OracleValidator) Validate(ctx context.Context, sub Submission) (*Result, error) {
	body, err := json.Marshal(o.request(sub))
	if err != nil {
		return nil, fmt.Errorf("failed to encode oracle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read oracle response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle returned %d: %s", resp.StatusCode, gjson.GetBytes(raw, "error.message").String())
	}

	return o.parse(raw)
}

func (o *OracleValidator) request(sub Submission) map[string]any {
	prompt := fmt.Sprintf("Goal: %s\nDescription: %s\nCategory: %s\nDeadline: %s\nProof: %s",
		sub.GoalTitle, sub.GoalDescription, sub.Category, sub.Deadline.UTC().Format(time.RFC3339), sub.Text)

	content := []map[string]any{{"type": "text", "text": prompt}}
	if sub.ImageURL != "" {
		content = append(content, map[string]any{
			"type":      "image_url",
			"image_url": map[string]string{"url": sub.ImageURL},
		})
	}

	return map[string]any{
		"model": o.model,
		"messages": []map[string]any{
			{"role": "system", "content": oracleSystemPrompt},
			{"role": "user", "content": content},
		},
		"response_format": map[string]string{"type": "json_object"},
		"temperature":     0,
	}
}

func (o *OracleValidator) parse(raw []byte) (*Result, error) {
	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.Exists() {
		return nil, fmt.Errorf("oracle response has no message content")
	}

	answer := strings.TrimSpace(content.String())
	answer = strings.TrimPrefix(answer, "```json")
	answer = strings.TrimSuffix(strings.TrimPrefix(answer, "```"), "```")
	if !gjson.Valid(answer) {
		return nil, fmt.Errorf("oracle answer is not JSON")
	}

	parsed := gjson.Parse(answer)
	res := &Result{
		Verdict:    normalizeVerdict(parsed.Get("verdict").String()),
		Confidence: clamp(int(parsed.Get("confidence").Int()), 0, 100),
		Reasoning:  parsed.Get("reasoning").String(),
	}

	// A terminal verdict moves money; low confidence goes to a human instead.
	if res.Verdict != model.VerdictNeedsReview && res.Confidence < o.minConfidence {
		res.Reasoning = fmt.Sprintf("confidence %d%% below threshold %d%%: %s", res.Confidence, o.minConfidence, res.Reasoning)
		res.Verdict = model.VerdictNeedsReview
	}

	return res, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
