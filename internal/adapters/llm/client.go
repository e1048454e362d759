/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/andrewchw/jira-action-items-chatbot/internal/config"
	"github.com/andrewchw/jira-action-items-chatbot/internal/domain"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/rs/zerolog"
)

// Cache stores completions keyed by prompt hash. Implemented by the repo.
type Cache interface {
	GetLLMCache(ctx context.Context, promptHash string) (string, bool, error)
	PutLLMCache(ctx context.Context, promptHash, response string, ttl time.Duration) error
}

type Client struct {
	api       openai.Client
	model     string
	fallback  string
	maxTokens int64
	timeout   time.Duration
	cacheTTL  time.Duration
	cache     Cache
	log       zerolog.Logger
}

func NewClient(cfg config.Config, cache Cache, log zerolog.Logger) *Client {
	return &Client{
		api:       openai.NewClient(option.WithBaseURL(cfg.OpenRouterBaseURL), option.WithAPIKey(cfg.OpenRouterKey)),
		model:     cfg.LLMModel,
		fallback:  cfg.LLMFallbackModel,
		maxTokens: int64(cfg.LLMMaxTokens),
		timeout:   cfg.LLMTimeout,
		cacheTTL:  cfg.CacheTTL,
		cache:     cache,
		log:       log,
	}
}

// Complete renders one reply for the conversation. A zero maxTokens takes the
// configured default. Identical prompts within the cache TTL reuse the stored
// completion; the primary model falls back to the secondary, then to a canned
// reply, so the pipeline never surfaces a provider outage to the user.
func (c *Client) Complete(ctx context.Context, messages []domain.ChatMessage, temperature float64, maxTokens int64, useCache bool) (string, error) {
	if maxTokens <= 0 { maxTokens = c.maxTokens }
	key := promptHash(c.model, messages)
	if useCache && c.cache != nil {
		if resp, ok, err := c.cache.GetLLMCache(ctx, key); err == nil && ok {
			return resp, nil
		} else if err != nil {
			c.log.Warn().Err(err).Msg("llm cache read failed")
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.complete(ctx, c.model, messages, temperature, maxTokens)
	if err != nil && c.fallback != "" {
		c.log.Warn().Err(err).Str("model", c.model).Msg("primary model failed, trying fallback")
		resp, err = c.complete(ctx, c.fallback, messages, temperature, maxTokens)
	}
	if err != nil {
		c.log.Error().Err(err).Msg("llm completion failed")
		return cannedReply(messages), nil
	}

	if useCache && c.cache != nil {
		if err := c.cache.PutLLMCache(ctx, key, resp, c.cacheTTL); err != nil {
			c.log.Warn().Err(err).Msg("llm cache write failed")
		}
	}
	return resp, nil
}

func (c *Client) complete(ctx context.Context, model string, messages []domain.ChatMessage, temperature float64, maxTokens int64) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		MaxTokens:   openai.Int(maxTokens),
		Temperature: openai.Float(temperature),
		Messages:    make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}
	out, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil { return "", err }
	if len(out.Choices) == 0 { return "", &domain.RemoteAPIError{StatusCode: 502, Message: "empty completion"} }
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// cannedReply keeps the conversation coherent when every model is down.
func cannedReply(messages []domain.ChatMessage) string {
	last := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" { last = strings.ToLower(messages[i].Content); break }
	}
	switch {
	case strings.Contains(last, "create"):
		return "I can help create that task. Could you confirm the project and a short title?"
	case strings.Contains(last, "remind"):
		return "I can set that reminder. When should I remind you?"
	case strings.Contains(last, "show") || strings.Contains(last, "list"):
		return "I can list your tasks. Give me a moment and try again shortly."
	default:
		return "I'm having trouble reaching my language model right now. Your request was noted; please try again in a moment."
	}
}

func promptHash(model string, messages []domain.ChatMessage) string {
	b, _ := json.Marshal(struct {
		Model    string
		Messages []domain.ChatMessage
	}{model, messages})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
