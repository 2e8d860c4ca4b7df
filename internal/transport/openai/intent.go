package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"

	"github.com/kailas-cloud/shopsearch/internal/domain"
	"github.com/kailas-cloud/shopsearch/internal/metrics"
)

// IntentExtractor derives structured search intent from a prompt via an
// OpenAI-compatible chat completion with a strict JSON-schema response format.
type IntentExtractor struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// ExtractorConfig holds the language model settings.
type ExtractorConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewIntentExtractor creates a chat-based intent extractor.
func NewIntentExtractor(cfg *ExtractorConfig) *IntentExtractor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &IntentExtractor{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// intentSchema is the required response shape: exactly gender, product_types
// and expanded_query. Undetermined gender is the literal "null" sentinel,
// converted to an absent value during normalization.
var intentSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"gender": {
			Type: jsonschema.String,
			Enum: []string{"male", "female", "unisex", "null"},
		},
		"product_types": {
			Type:  jsonschema.Array,
			Items: &jsonschema.Definition{Type: jsonschema.String},
		},
		"expanded_query": {
			Type: jsonschema.String,
		},
	},
	Required:             []string{"gender", "product_types", "expanded_query"},
	AdditionalProperties: false,
}

// rawIntent mirrors the JSON the model must return.
type rawIntent struct {
	Gender        string   `json:"gender"`
	ProductTypes  []string `json:"product_types"`
	ExpandedQuery string   `json:"expanded_query"`
}

// ExtractIntent implements domain.IntentExtractor. Non-conforming or empty
// output is a parse error; the caller treats it like any transport failure.
func (e *IntentExtractor) ExtractIntent(ctx context.Context, prompt string) (domain.Extraction, error) {
	req := openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "search_intent",
				Schema: &intentSchema,
				Strict: true,
			},
		},
	}

	start := time.Now()

	resp, err := e.client.CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(e.model, "error").Inc()
		return domain.Extraction{}, fmt.Errorf("chat completion: %w", err)
	}

	metrics.LLMRequestsTotal.WithLabelValues(e.model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(e.model).Observe(duration.Seconds())

	if len(resp.Choices) == 0 {
		return domain.Extraction{}, fmt.Errorf("empty chat completion response")
	}

	raw, err := parseIntentJSON(resp.Choices[0].Message.Content)
	if err != nil {
		e.logger.Debug("unparseable intent response",
			zap.String("content", resp.Choices[0].Message.Content))
		return domain.Extraction{}, err
	}

	return domain.Extraction{
		Gender:        raw.Gender,
		ProductTypes:  raw.ProductTypes,
		ExpandedQuery: raw.ExpandedQuery,
	}, nil
}

// parseIntentJSON strictly decodes model output. Markdown code fences are
// stripped first; some models wrap JSON in them despite the response format.
func parseIntentJSON(content string) (rawIntent, error) {
	clean := strings.TrimSpace(content)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)

	if clean == "" {
		return rawIntent{}, fmt.Errorf("empty intent response")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(clean)))
	dec.DisallowUnknownFields()

	var raw rawIntent
	if err := dec.Decode(&raw); err != nil {
		return rawIntent{}, fmt.Errorf("decode intent response: %w", err)
	}
	return raw, nil
}
