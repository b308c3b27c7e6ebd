package thesaurus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/atinylittleshell/quill/pkg/wire"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"
)

var ErrEmptyCompletion = errors.New("model returned no choices")

// LLMConfig selects an OpenAI-compatible chat completion endpoint.
type LLMConfig struct {
	Provider    string   `yaml:"provider"`
	BaseURL     string   `yaml:"base_url"`
	APIKey      string   `yaml:"api_key"`
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
}

type synonymAnswer struct {
	Synonyms    []string `json:"synonyms" description:"Up to five single-word or short-phrase synonyms, best first" required:"true"`
	Explanation string   `json:"explanation" description:"A short definition of the word as used" required:"true"`
}

// LLMProvider asks a chat model for synonyms.
type LLMProvider struct {
	client      *openai.Client
	model       string
	temperature *float64
	limit       int
	logger      *zap.Logger
	schema      string
}

func NewLLMProvider(cfg LLMConfig, limit int, logger *zap.Logger) (*LLMProvider, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = "ollama"
	}

	apiKey, baseURL := cfg.APIKey, cfg.BaseURL
	switch provider {
	case "openai":
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
	case "openrouter":
		if baseURL == "" {
			baseURL = "https://openrouter.ai/api/v1"
		}
	default:
		if apiKey == "" {
			apiKey = "ollama"
		}
		if baseURL == "" {
			baseURL = "http://localhost:11434/v1/"
		}
	}

	model := cfg.Model
	if model == "" {
		model = "qwen2.5"
	}

	definition, err := jsonschema.GenerateSchemaForType(synonymAnswer{})
	if err != nil {
		return nil, fmt.Errorf("failed to build response schema: %w", err)
	}
	schema, err := definition.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode response schema: %w", err)
	}

	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = baseURL

	return &LLMProvider{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       model,
		temperature: cfg.Temperature,
		limit:       limit,
		logger:      logger,
		schema:      string(schema),
	}, nil
}

func (p *LLMProvider) Synonyms(ctx context.Context, word string) (wire.SuggestionResponse, error) {
	userMessage := fmt.Sprintf(`You are a thesaurus for a writing assistant.
You will be given one word enclosed in <word> tags, possibly misspelled.
Reply with synonyms a writer could use in its place.

# Instructions
* If the word looks misspelled, put the corrected spelling first
* Keep the part of speech of the word
* Reply with an empty list when the word has no sensible synonyms

# Response JSON Schema
%s

<word>%s</word>`, p.schema, word)

	request := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userMessage,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	if p.temperature != nil {
		request.Temperature = float32(*p.temperature)
	}

	completion, err := p.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return wire.SuggestionResponse{}, fmt.Errorf("synonym completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return wire.SuggestionResponse{}, ErrEmptyCompletion
	}

	content := completion.Choices[0].Message.Content
	answer := synonymAnswer{}
	if err := json.Unmarshal([]byte(content), &answer); err != nil {
		p.logger.Warn("thesaurus failed to parse model answer", zap.String("content", content), zap.Error(err))
		return wire.SuggestionResponse{}, fmt.Errorf("failed to parse model answer: %w", err)
	}

	synonyms := make([]string, 0, len(answer.Synonyms))
	for _, s := range answer.Synonyms {
		s = strings.TrimSpace(s)
		if s != "" && !strings.EqualFold(s, word) {
			synonyms = append(synonyms, s)
		}
	}

	p.logger.Debug("thesaurus model answered", zap.String("word", word), zap.Strings("synonyms", synonyms))
	return wire.SuggestionResponse{
		Synonyms:    matchCase(word, limit(synonyms, p.limit)),
		Explanation: answer.Explanation,
	}, nil
}
