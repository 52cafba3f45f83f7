package validator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/goalstake/internal/config"
	"github.com/templui/goalstake/internal/model"
	"github.com/tidwall/gjson"
)

func oracleServer(t *testing.T, status int, answer string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])

		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": answer}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newOracle(url string) *OracleValidator {
	return NewOracleValidator(OracleConfig{
		URL:           url,
		APIKey:        "sk-test",
		Model:         "test-model",
		MinConfidence: 70,
	})
}

func TestOracleValidator(t *testing.T) {
	tests := []struct {
		name           string
		answer         string
		wantVerdict    model.Verdict
		wantConfidence int
	}{
		{"approve", `{"verdict":"approve","confidence":92,"reasoning":"photo shows finish line"}`, model.VerdictApprove, 92},
		{"approved wording", `{"verdict":"APPROVED","confidence":80,"reasoning":"ok"}`, model.VerdictApprove, 80},
		{"reject", `{"verdict":"reject","confidence":88,"reasoning":"unrelated image"}`, model.VerdictReject, 88},
		{"low confidence approve", `{"verdict":"approve","confidence":40,"reasoning":"blurry"}`, model.VerdictNeedsReview, 40},
		{"needs review", `{"verdict":"needs_review","confidence":10,"reasoning":"unclear"}`, model.VerdictNeedsReview, 10},
		{"fenced json", "```json\n{\"verdict\":\"reject\",\"confidence\":150}\n```", model.VerdictReject, 100},
		{"unknown verdict", `{"verdict":"maybe","confidence":99}`, model.VerdictNeedsReview, 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := oracleServer(t, http.StatusOK, tt.answer)

			res, err := newOracle(srv.URL).Validate(context.Background(), Submission{
				GoalTitle: "Run a marathon",
				Text:      "Finished in 4h",
				ImageURL:  "https://example.com/proof.jpg",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantVerdict, res.Verdict)
			assert.Equal(t, tt.wantConfidence, res.Confidence)
		})
	}
}

func TestOracleValidatorErrors(t *testing.T) {
	srv := oracleServer(t, http.StatusInternalServerError, "")
	_, err := newOracle(srv.URL).Validate(context.Background(), Submission{})
	assert.Error(t, err)

	srv = oracleServer(t, http.StatusOK, "I think they did it")
	_, err = newOracle(srv.URL).Validate(context.Background(), Submission{})
	assert.Error(t, err)
}

func TestOracleRequestIncludesImage(t *testing.T) {
	o := newOracle("http://unused")
	body, err := json.Marshal(o.request(Submission{Text: "done", ImageURL: "https://img"}))
	require.NoError(t, err)

	assert.Equal(t, "https://img", gjson.GetBytes(body, "messages.1.content.1.image_url.url").String())
	assert.Equal(t, "json_object", gjson.GetBytes(body, "response_format.type").String())
}

type slowValidator struct{ delay time.Duration }

func (slowValidator) Name() string { return "slow" }

func (s slowValidator) Validate(ctx context.Context, _ Submission) (*Result, error) {
	select {
	case <-time.After(s.delay):
		return &Result{Verdict: model.VerdictApprove, Confidence: 100}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type failingValidator struct{}

func (failingValidator) Name() string { return "failing" }

func (failingValidator) Validate(context.Context, Submission) (*Result, error) {
	return nil, errors.New("connection reset")
}

func TestBoundedTimeoutIsNeedsReview(t *testing.T) {
	v := Bounded(slowValidator{delay: time.Second}, 20*time.Millisecond)

	start := time.Now()
	res, err := v.Validate(context.Background(), Submission{GoalID: "g"})
	require.NoError(t, err)
	assert.Equal(t, model.VerdictNeedsReview, res.Verdict)
	assert.True(t, res.TimedOut)
	assert.Equal(t, "validator timed out", res.Reasoning)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestBoundedErrorIsNeedsReview(t *testing.T) {
	res, err := Bounded(failingValidator{}, time.Second).Validate(context.Background(), Submission{})
	require.NoError(t, err)
	assert.Equal(t, model.VerdictNeedsReview, res.Verdict)
	assert.True(t, res.TimedOut)
	assert.Contains(t, res.Reasoning, "connection reset")
}

func TestBoundedPassesThrough(t *testing.T) {
	res, err := Bounded(slowValidator{}, time.Second).Validate(context.Background(), Submission{})
	require.NoError(t, err)
	assert.Equal(t, model.VerdictApprove, res.Verdict)
	assert.False(t, res.TimedOut)
}

func TestNewValidator(t *testing.T) {
	v, err := NewValidator(&config.Config{ValidatorProvider: "manual", ValidatorTimeout: time.Second})
	require.NoError(t, err)
	res, err := v.Validate(context.Background(), Submission{})
	require.NoError(t, err)
	assert.Equal(t, model.VerdictNeedsReview, res.Verdict)

	v, err = NewValidator(&config.Config{AppEnv: "development", ValidatorProvider: "static", ValidatorStaticVerdict: "reject"})
	require.NoError(t, err)
	res, err = v.Validate(context.Background(), Submission{})
	require.NoError(t, err)
	assert.Equal(t, model.VerdictReject, res.Verdict)

	_, err = NewValidator(&config.Config{AppEnv: "production", ValidatorProvider: "static", ValidatorStaticVerdict: "approve"})
	assert.Error(t, err)

	_, err = NewValidator(&config.Config{ValidatorProvider: "oracle"})
	assert.Error(t, err)

	_, err = NewValidator(&config.Config{ValidatorProvider: "crystal-ball"})
	assert.Error(t, err)
}
