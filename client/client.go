// Package client adapts the OpenAI chat completions API to the agent.Generator contract.
package client

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"galileo/agent"
	"galileo/ratelimiter"
)

const (
	DefaultRequestsPerMinute = 60
	DefaultTokensPerMinute   = 90000
)

// ErrIncompleteStream is returned when a stream ends without a finish reason.
var ErrIncompleteStream = errors.New("stream ended before the completion finished")

type Config struct {
	APIKey            string
	BaseURL           string
	RequestsPerMinute int
	TokensPerMinute   int
	Logger            *log.Logger
	Usage             *UsageTracker
	// Tokens counts prompt tokens for the token bucket; defaults to tiktoken.
	Tokens TokenCounter
}

// Client executes prompts against an OpenAI-compatible endpoint.
type Client struct {
	client         openai.Client
	logger         *log.Logger
	usage          *UsageTracker
	tokens         TokenCounter
	requestLimiter *ratelimiter.TokenBucket
	tokenLimiter   *ratelimiter.TokenBucket
}

var _ agent.Generator = (*Client)(nil)

func New(config Config) *Client {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if config.TokensPerMinute <= 0 {
		config.TokensPerMinute = DefaultTokensPerMinute
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	if config.Usage == nil {
		config.Usage = NewUsageTracker()
	}
	if config.Tokens == nil {
		config.Tokens = newTiktokenCounter()
	}

	// Retries belong to the agent, which restarts the whole stream.
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	requestRefillRate := time.Minute / time.Duration(config.RequestsPerMinute)
	tokenRefillRate := time.Minute / time.Duration(config.TokensPerMinute)

	return &Client{
		client:         openai.NewClient(opts...),
		logger:         config.Logger,
		usage:          config.Usage,
		tokens:         config.Tokens,
		requestLimiter: ratelimiter.NewTokenBucket(config.RequestsPerMinute, requestRefillRate),
		tokenLimiter:   ratelimiter.NewTokenBucket(config.TokensPerMinute, tokenRefillRate),
	}
}

// Usage returns the tracker the client records into.
func (c *Client) Usage() *UsageTracker {
	return c.usage
}

// Stream sends prompt as a single user message. With binding.Stream set, deltas are yielded as
// they arrive; otherwise the whole reply is yielded as one fragment.
func (c *Client) Stream(ctx context.Context, binding agent.Binding, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		start := time.Now()
		inputTokens := c.tokens.Count(binding.Model, prompt)

		if err := c.requestLimiter.Wait(ctx); err != nil {
			yield("", fmt.Errorf("request rate limit: %w", err))
			return
		}
		if err := c.tokenLimiter.WaitN(ctx, inputTokens); err != nil {
			yield("", fmt.Errorf("token rate limit: %w", err))
			return
		}

		params := openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Model:       openai.ChatModel(binding.Model),
			Temperature: openai.Float(binding.Temperature),
		}

		if !binding.Stream {
			c.complete(ctx, binding, params, inputTokens, start, yield)
			return
		}

		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}
		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		var (
			output   strings.Builder
			usage    openai.CompletionUsage
			finished bool
		)
		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.TotalTokens > 0 {
				usage = chunk.Usage
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.FinishReason != "" {
				finished = true
			}
			if choice.Delta.Content == "" {
				continue
			}
			output.WriteString(choice.Delta.Content)
			if !yield(choice.Delta.Content, nil) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			c.logger.Error("OpenAI stream failed",
				"agent", binding.Agent,
				"model", binding.Model,
				"error", err,
				"duration", time.Since(start),
			)
			yield("", fmt.Errorf("stream from %s: %w", binding.Model, err))
			return
		}
		if !finished {
			yield("", fmt.Errorf("stream from %s: %w", binding.Model, ErrIncompleteStream))
			return
		}

		c.record(binding, inputTokens, usage, output.String(), time.Since(start))
	}
}

func (c *Client) complete(ctx context.Context, binding agent.Binding, params openai.ChatCompletionNewParams, inputTokens int, start time.Time, yield func(string, error) bool) {
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		c.logger.Error("OpenAI API request failed",
			"agent", binding.Agent,
			"model", binding.Model,
			"input_tokens", inputTokens,
			"error", err,
			"duration", time.Since(start),
		)
		yield("", fmt.Errorf("completion from %s: %w", binding.Model, err))
		return
	}
	if len(resp.Choices) == 0 {
		yield("", fmt.Errorf("completion from %s: no choices returned", binding.Model))
		return
	}

	content := resp.Choices[0].Message.Content
	c.record(binding, inputTokens, resp.Usage, content, time.Since(start))
	yield(content, nil)
}

// record logs the call and adds it to the usage tracker. Reported usage wins over local counts.
func (c *Client) record(binding agent.Binding, inputTokens int, usage openai.CompletionUsage, output string, duration time.Duration) {
	outputTokens := int(usage.CompletionTokens)
	if usage.TotalTokens > 0 {
		inputTokens = int(usage.PromptTokens)
	} else {
		outputTokens = c.tokens.Count(binding.Model, output)
	}

	cost := c.usage.Record(binding.Agent, binding.Model, inputTokens, outputTokens)
	total := c.usage.Total()

	c.logger.Info("OpenAI API request completed",
		"agent", binding.Agent,
		"model", binding.Model,
		"input_tokens", inputTokens,
		"output_tokens", outputTokens,
		"expected_cost_usd", cost,
		"session_cost_usd", total.Cost,
		"duration", duration,
	)
}

func (c *Client) Close() {
	if c.requestLimiter != nil {
		c.requestLimiter.Stop()
	}
	if c.tokenLimiter != nil {
		c.tokenLimiter.Stop()
	}
}
