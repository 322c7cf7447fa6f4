package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"pkt.systems/pslog"
)

// Request is the free text typed by the user.
type Request struct {
	FreeText string
}

// Result holds the structured fields produced from free text.
type Result struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Resolution  string `json:"resolution"`
}

// Enricher turns free text into structured demand fields. Calls may fail.
type Enricher interface {
	Enrich(ctx context.Context, req Request) (Result, error)
}

// Func adapts a func to Enricher.
type Func func(ctx context.Context, req Request) (Result, error)

// Enrich implements Enricher.
func (f Func) Enrich(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// ErrEmptyResult is returned when the model produced no usable field.
var ErrEmptyResult = errors.New("enrichment returned no fields")

const systemPrompt = `You turn a short on-call note into a support ticket.
Reply with a JSON object with the string fields "title", "description" and "resolution".
Keep the language of the note. The title has at most 80 characters.`

// Config configures the OpenAI-compatible client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAI is an Enricher backed by a chat completion API.
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	log     pslog.Logger
}

// NewOpenAI constructs a chat completion enricher.
func NewOpenAI(cfg Config, logger pslog.Logger) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("enrichment api key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	if logger != nil {
		logger = logger.With("model", model)
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		timeout: cfg.Timeout,
		log:     logger,
	}, nil
}

// Enrich implements Enricher.
func (o *OpenAI) Enrich(ctx context.Context, req Request) (Result, error) {
	text := strings.TrimSpace(req.FreeText)
	if text == "" {
		return Result{}, errors.New("free text is required")
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		if o.log != nil {
			o.log.Warn("enrich request failed", "err", err)
		}
		return Result{}, fmt.Errorf("enrich request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, ErrEmptyResult
	}
	result, err := parseResult(resp.Choices[0].Message.Content)
	if err != nil {
		if o.log != nil {
			o.log.Warn("enrich response invalid", "err", err)
		}
		return Result{}, err
	}
	if o.log != nil {
		o.log.Debug("enrich ok", "finish_reason", resp.Choices[0].FinishReason)
	}
	return result, nil
}

func parseResult(content string) (Result, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	var result Result
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &result); err != nil {
		return Result{}, fmt.Errorf("decode enrichment: %w", err)
	}
	result.Title = strings.TrimSpace(result.Title)
	result.Description = strings.TrimSpace(result.Description)
	result.Resolution = strings.TrimSpace(result.Resolution)
	if result.Title == "" && result.Description == "" && result.Resolution == "" {
		return Result{}, ErrEmptyResult
	}
	return result, nil
}
