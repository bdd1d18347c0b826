package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAI completes through the Chat Completions API.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI returns an adapter using apiKey. Extra options are appended after
// the key, which lets tests point the client at a local server.
func NewOpenAI(apiKey, model string, opts ...option.RequestOption) *OpenAI {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAI{client: openai.NewClient(opts...), model: model}
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserMessage),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	params.Temperature = openai.Float(req.Temperature)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if pe, ok := fromContext(ctx, err); ok {
			return nil, pe
		}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, fromStatus(apiErr.StatusCode, err)
		}
		return nil, &ProviderError{Kind: KindUnknown, Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Kind: KindUnknown, Err: errors.New("openai: empty choices")}
	}

	out := &Response{
		Text:             resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	if out.Model == "" {
		out.Model = model
	}
	return out, nil
}
