// Package extract invokes the text understanding service with a rendered
// prompt and returns its response as a validated JSON object.
package extract

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/billscan/pkg/anthropic"
)

// ErrMalformedOutput marks a completion response that was not valid JSON or
// violated the expected schema. It is the absence of a result, not a crash:
// callers log it and decide what the failed page or aggregation means.
var ErrMalformedOutput = errors.New("malformed model output")

// Client issues structured completion requests. Each call is exactly one
// completion request with deterministic (zero temperature) decoding; no
// retries happen at this layer.
type Client struct {
	llm       anthropic.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
}

// Config holds the completion request parameters.
type Config struct {
	Model     string
	MaxTokens int64
	// RequestsPerSecond throttles outbound completion calls. Zero means
	// no throttling.
	RequestsPerSecond float64
}

// NewClient creates a structured extraction client on top of the given
// completion backend.
func NewClient(llm anthropic.Client, cfg Config) *Client {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		llm:       llm,
		model:     cfg.Model,
		maxTokens: maxTokens,
		limiter:   limiter,
	}
}

// Complete sends one zero-temperature completion request and parses the
// response as a single JSON object validated against schema. A backend
// failure is returned wrapped; a non-JSON or schema-violating response is
// returned as ErrMalformedOutput. Neither is retried here.
func (c *Client) Complete(ctx context.Context, phase, system, prompt string, schema *jsonschema.Schema) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "extract: rate limit wait")
	}

	temp := 0.0
	resp, err := c.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(system),
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "extract: %s completion", phase)
	}
	resp.Usage.Log(c.model, phase)

	raw := []byte(cleanJSON(resp.Text()))

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		zap.L().Warn("extract: response is not valid JSON",
			zap.String("phase", phase),
			zap.Error(err),
		)
		return nil, eris.Wrapf(ErrMalformedOutput, "extract: %s: parse response", phase)
	}

	if schema != nil {
		if err := schema.Validate(decoded); err != nil {
			zap.L().Warn("extract: response violates schema",
				zap.String("phase", phase),
				zap.Error(err),
			)
			return nil, eris.Wrapf(ErrMalformedOutput, "extract: %s: schema validation", phase)
		}
	}

	return json.RawMessage(raw), nil
}
