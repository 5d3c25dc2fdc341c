package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/tordrt/fedquery/internal/util"
)

// DefaultChatModel is the default model for chat completions
const DefaultChatModel = "gpt-4o-mini"

// OpenAIConfig holds configuration for the OpenAI oracle
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	// Planning adds a planning completion before every draft.
	Planning   bool
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// OpenAIOracle drafts SQL with an OpenAI-compatible chat completion endpoint.
type OpenAIOracle struct {
	client      *openai.Client
	model       string
	temperature float32
	planning    bool
	timeout     time.Duration
	maxRetries  int
	retryDelay  time.Duration
	logger      zerolog.Logger
}

// NewOpenAIOracle creates an oracle from config
func NewOpenAIOracle(cfg OpenAIConfig, logger zerolog.Logger) (*OpenAIOracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultChatModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &OpenAIOracle{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
		planning:    cfg.Planning,
		timeout:     timeout,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		logger:      logger.With().Str("component", "oracle").Str("model", model).Logger(),
	}, nil
}

// Draft writes SQL for a question, optionally planning first.
func (o *OpenAIOracle) Draft(ctx context.Context, schemaText, question string) (string, error) {
	var plan string
	if o.planning {
		var err error
		plan, err = o.complete(ctx, planPrompt(schemaText, question))
		if err != nil {
			return "", fmt.Errorf("plan query: %w", err)
		}
		o.logger.Debug().Str("plan", plan).Msg("Planned query")
	}

	text, err := o.complete(ctx, draftPrompt(schemaText, plan, question))
	if err != nil {
		return "", fmt.Errorf("draft query: %w", err)
	}
	return finish(text)
}

// Repair rewrites SQL that failed with errText.
func (o *OpenAIOracle) Repair(ctx context.Context, schemaText, badSQL, errText string) (string, error) {
	text, err := o.complete(ctx, repairPrompt(schemaText, badSQL, errText))
	if err != nil {
		return "", fmt.Errorf("repair query: %w", err)
	}
	return finish(text)
}

func finish(text string) (string, error) {
	sql := Cleanup(text)
	if sql == "" {
		return "", ErrEmptyResponse
	}
	return sql, nil
}

func (o *OpenAIOracle) complete(ctx context.Context, prompt string) (string, error) {
	var content string
	attempts, err := util.Retry(ctx, o.retryDelay, o.maxRetries, func() error {
		var err error
		content, err = o.chat(ctx, prompt)
		return err
	}, func(attempt int, err error) {
		o.logger.Warn().Err(err).Int("attempt", attempt).Msg("Chat completion failed")
	})
	if err != nil {
		return "", fmt.Errorf("failed to complete chat after %d attempts: %w", attempts, err)
	}
	return content, nil
}

func (o *OpenAIOracle) chat(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: o.temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
