package agent

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ShayCichocki/weave/pkg/models"
)

// defaultMaxTokens bounds API responses when the caller does not care.
const defaultMaxTokens = 8192

// APIAgent is an Anthropic API backend.
type APIAgent struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	hasKey    bool
}

// APIConfig configures an APIAgent.
type APIConfig struct {
	// APIKey is the Anthropic API key. Empty falls back to the
	// ANTHROPIC_API_KEY environment variable.
	APIKey string
	// Model is the default model. Empty selects a current Sonnet.
	Model string
	// MaxTokens caps response length. Zero selects the default.
	MaxTokens int64
}

// NewAPIAgent creates an Anthropic API backend.
func NewAPIAgent(cfg APIConfig) *APIAgent {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.Model("claude-sonnet-4-5-20250929")
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &APIAgent{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		hasKey:    apiKey != "",
	}
}

// Name returns the backend name.
func (a *APIAgent) Name() string {
	return "anthropic"
}

// IsAvailable reports whether an API key was configured.
func (a *APIAgent) IsAvailable(_ context.Context) bool {
	return a.hasKey
}

// Run sends the prompt as a single user message and returns the response.
func (a *APIAgent) Run(ctx context.Context, prompt string, opts *RunOptions) (*Result, error) {
	ctx, cancel := withTimeout(ctx, opts)
	defer cancel()

	model := a.model
	if opts != nil && opts.Model != "" {
		model = anthropic.Model(opts.Model)
	}

	started := time.Now()
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic message: %w", err)
	}

	var content strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &Result{
		Content:  content.String(),
		Model:    string(msg.Model),
		Duration: time.Since(started),
		Usage: models.TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
			TotalTokens:  msg.Usage.InputTokens + msg.Usage.OutputTokens,
		},
	}, nil
}
