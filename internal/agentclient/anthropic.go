package agentclient

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/claude"

	"github.com/vx-daniel/barf/pkg/types"
)

// NewAnthropicClient builds an EinoClient backed by eino-ext's Claude
// chat model, the same model package the teacher's provider package
// used, minus the Bedrock/multi-provider registry this project has no
// use for: every mode model in Config is a claude-* ID, so one client
// per process, parameterized per-call by Request.Model, is enough.
func NewAnthropicClient(ctx context.Context, cfg types.Config) (*EinoClient, error) {
	apiKey := cfg.AnthropicAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("agentclient: ANTHROPIC_API_KEY not set")
	}

	claudeCfg := &claude.Config{
		APIKey:    apiKey,
		Model:     cfg.BuildModel,
		MaxTokens: cfg.AnthropicMaxTokens,
	}
	if claudeCfg.MaxTokens == 0 {
		claudeCfg.MaxTokens = 8192
	}
	if cfg.AnthropicBaseURL != "" {
		claudeCfg.BaseURL = &cfg.AnthropicBaseURL
	}

	chatModel, err := claude.NewChatModel(ctx, claudeCfg)
	if err != nil {
		return nil, fmt.Errorf("agentclient: create claude model: %w", err)
	}
	return NewEinoClient(chatModel), nil
}
