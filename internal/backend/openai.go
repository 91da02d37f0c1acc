package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/HanTheDev/relationship-coach-api/internal/prompt"
)

const (
	DefaultOpenAIModel = "gpt-3.5-turbo"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1200

	maxErrorBody = 64 << 10
)

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
}

type chatCompletions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAI calls the chat completions API once per Complete; retries are
// disabled so each request makes exactly one attempt.
type OpenAI struct {
	completions chatCompletions
	model       string
	temperature float64
	maxTokens   int
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai: api key required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &OpenAI{
		completions: &client.Chat.Completions,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Complete(ctx context.Context, p prompt.Payload) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.System),
			openai.UserMessage(p.User),
		},
		Temperature: openai.Float(o.temperature),
		MaxTokens:   openai.Int(int64(o.maxTokens)),
	}

	completion, err := o.completions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return "", errors.New("openai: empty completion")
	}
	content := completion.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", errors.New("openai: empty message content")
	}
	return content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("openai: %w", err)
	}
	body := ""
	if apiErr.Response != nil && apiErr.Response.Body != nil {
		if b, readErr := io.ReadAll(io.LimitReader(apiErr.Response.Body, maxErrorBody)); readErr == nil {
			body = string(b)
		}
	}
	if policy := classifyStatus(apiErr.StatusCode, apiErr.Type, apiErr.Code, apiErr.Message, body, err.Error()); policy != nil {
		return fmt.Errorf("%w: openai status %d: %v", policy, apiErr.StatusCode, err)
	}
	return fmt.Errorf("openai status %d: %w", apiErr.StatusCode, err)
}
