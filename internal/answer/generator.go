// Package answer assembles retrieved context and a question into a prompt,
// calls the model provider and strictly validates the response, retrying and
// falling back to a cheaper model on failure.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"github.com/lexichat/backend/internal/pkg/errs"
	"github.com/lexichat/backend/internal/pkg/retry"
	"github.com/lexichat/backend/internal/vectorstore"
)

const (
	// DefaultPrimaryModel is the premium model used first.
	DefaultPrimaryModel = openai.ChatModelGPT4o
	// DefaultFallbackModel is the cheaper model substituted after the
	// primary exhausts its retries.
	DefaultFallbackModel = openai.ChatModelGPT4oMini
	// DefaultMaxTokens is the completion ceiling on the primary model.
	DefaultMaxTokens = 1024
	// DefaultFallbackMaxTokens is the reduced ceiling on the fallback model.
	DefaultFallbackMaxTokens = 512
)

const systemInstruction = `You are a legal-document assistant. Answer the question using only the provided document excerpts. Cite the source label of every excerpt you rely on. If the excerpts do not contain the answer, say so plainly.`

// Answer is the result of a generation call.
type Answer struct {
	Text       string
	TokensUsed int64
}

// completionAPI is the chat-completion surface the generator depends on.
type completionAPI interface {
	Complete(ctx context.Context, model string, maxTokens int64, messages []openai.ChatCompletionMessageParamUnion) (*openai.ChatCompletion, error)
}

// Generator produces answers from context chunks with retry and model
// fallback.
type Generator struct {
	api               completionAPI
	primaryModel      string
	fallbackModel     string
	maxTokens         int64
	fallbackMaxTokens int64
	policy            retry.Policy
	logger            *slog.Logger
}

// NewGenerator creates a generator over the given OpenAI client with the
// default model pair and retry policy.
func NewGenerator(client *openai.Client, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		api:               &openaiCompleter{client: client},
		primaryModel:      DefaultPrimaryModel,
		fallbackModel:     DefaultFallbackModel,
		maxTokens:         DefaultMaxTokens,
		fallbackMaxTokens: DefaultFallbackMaxTokens,
		policy: retry.Policy{
			MaxAttempts:         3,
			InitialInterval:     500 * time.Millisecond,
			MaxInterval:         10 * time.Second,
			Multiplier:          2,
			RandomizationFactor: 0.5,
			IsRetryable:         retryableGeneration,
		},
		logger: logger,
	}
}

// WithModels overrides the model pair. Empty values keep the defaults.
func (g *Generator) WithModels(primary, fallback string) *Generator {
	if primary != "" {
		g.primaryModel = primary
	}
	if fallback != "" {
		g.fallbackModel = fallback
	}
	return g
}

// Answer generates an answer for query from the selected context chunks.
// On exhausted retries with the primary model it falls back once to the
// cheaper model under a reduced token ceiling before surfacing the error.
func (g *Generator) Answer(ctx context.Context, query string, chunks []vectorstore.ContextChunk) (*Answer, error) {
	messages := buildMessages(query, chunks)

	result, err := g.generate(ctx, g.primaryModel, g.maxTokens, messages)
	if err == nil {
		return result, nil
	}
	if errors.Is(err, errs.ErrAuth) {
		// Unrecoverable; a cheaper model will not help.
		return nil, err
	}

	g.logger.Warn("primary model failed, falling back",
		"model", g.primaryModel, "fallback", g.fallbackModel, "error", err)

	result, fallbackErr := g.generate(ctx, g.fallbackModel, g.fallbackMaxTokens, messages)
	if fallbackErr != nil {
		return nil, fmt.Errorf("primary model: %w (fallback also failed: %v)", err, fallbackErr)
	}
	return result, nil
}

func (g *Generator) generate(ctx context.Context, model string, maxTokens int64, messages []openai.ChatCompletionMessageParamUnion) (*Answer, error) {
	var result *Answer
	err := g.policy.Do(ctx, func() error {
		resp, err := g.api.Complete(ctx, model, maxTokens, messages)
		if err != nil {
			return err
		}
		text, err := validateResponse(resp)
		if err != nil {
			return err
		}
		result = &Answer{Text: text, TokensUsed: resp.Usage.TotalTokens}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// retryableGeneration treats malformed responses as transient alongside the
// usual rate-limit and availability conditions; refusals, truncation and
// content filtering are model decisions a retry will not change.
func retryableGeneration(err error) bool {
	if errors.Is(err, ErrEmptyResponse) {
		return true
	}
	if errors.Is(err, ErrRefused) || errors.Is(err, ErrTruncated) || errors.Is(err, ErrContentFiltered) {
		return false
	}
	return errs.Retryable(err)
}

// validateResponse checks the raw response shape and returns the message
// text. Each failure mode maps to a distinct sentinel.
func validateResponse(resp *openai.ChatCompletion) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrEmptyResponse)
	}

	choice := resp.Choices[0]

	switch choice.FinishReason {
	case "length":
		return "", ErrTruncated
	case "content_filter":
		return "", ErrContentFiltered
	}

	if choice.Message.Refusal != "" {
		return "", fmt.Errorf("%w: %s", ErrRefused, choice.Message.Refusal)
	}

	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty message content", ErrEmptyResponse)
	}
	return text, nil
}

// buildMessages assembles the role instruction, source-labelled context and
// the question.
func buildMessages(query string, chunks []vectorstore.ContextChunk) []openai.ChatCompletionMessageParamUnion {
	var sb strings.Builder
	if len(chunks) > 0 {
		sb.WriteString("Document excerpts:\n\n")
		for _, chunk := range chunks {
			fmt.Fprintf(&sb, "[Source: %s | document %s]\n%s\n\n", chunk.ID, chunk.DocumentID, chunk.Text)
		}
	} else {
		sb.WriteString("No document excerpts were retrieved for this question.\n\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(query)

	return []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemInstruction),
		openai.UserMessage(sb.String()),
	}
}

// openaiCompleter adapts the OpenAI client to the completionAPI interface,
// mapping provider errors onto the taxonomy.
type openaiCompleter struct {
	client *openai.Client
}

func (c *openaiCompleter) Complete(ctx context.Context, model string, maxTokens int64, messages []openai.ChatCompletionMessageParamUnion) (*openai.ChatCompletion, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               model,
		MaxCompletionTokens: openai.Int(maxTokens),
	})
	if err != nil {
		return nil, errs.FromOpenAI(err)
	}
	return resp, nil
}
