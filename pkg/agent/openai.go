package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAI runs prompts through chat completions with an optional tool loop.
type OpenAI struct {
	client        openai.Client
	model         string
	instructions  string
	maxToolRounds int
	timeout       time.Duration
	logger        *slog.Logger

	mu       sync.RWMutex
	contexts []ContextBlock
	tools    map[string]Tool
	order    []string
}

// NewOpenAI creates an OpenAI runner. It fails with ErrMissingAPIKey when no
// key is configured.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.HTTPClient))
	}

	o := &OpenAI{
		client:        openai.NewClient(reqOpts...),
		model:         cfg.Model,
		instructions:  cfg.Instructions,
		maxToolRounds: cfg.MaxToolRounds,
		timeout:       cfg.Timeout,
		logger:        cfg.Logger.With("component", "agent.openai"),
		contexts:      cfg.Contexts,
	}
	o.SetTools(cfg.Tools...)
	return o, nil
}

// SetContexts replaces the context blocks used for subsequent prompts.
func (o *OpenAI) SetContexts(blocks ...ContextBlock) {
	o.mu.Lock()
	o.contexts = append([]ContextBlock(nil), blocks...)
	o.mu.Unlock()
}

// SetTools replaces the tool set used for subsequent prompts.
func (o *OpenAI) SetTools(tools ...Tool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tools = make(map[string]Tool, len(tools))
	o.order = o.order[:0]
	for _, t := range tools {
		if _, dup := o.tools[t.Name]; !dup {
			o.order = append(o.order, t.Name)
		}
		o.tools[t.Name] = t
	}
}

// Run sends prompt as a single user message and resolves tool calls until
// the model answers with text.
func (o *OpenAI) Run(ctx context.Context, prompt string) (string, error) {
	o.mu.RLock()
	instructions := BuildInstructions(o.instructions, o.contexts)
	tools := o.toolParams()
	o.mu.RUnlock()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(instructions),
			openai.UserMessage(prompt),
		},
	}
	if len(tools) > 0 {
		params.Tools = tools
	}

	for round := 0; ; round++ {
		start := time.Now()
		completion, err := o.complete(ctx, params)
		if err != nil {
			return "", err
		}
		if len(completion.Choices) == 0 {
			return "", ErrNoChoices
		}
		msg := completion.Choices[0].Message

		o.logger.Debug("completion",
			"round", round,
			"tool_calls", len(msg.ToolCalls),
			"tokens", completion.Usage.TotalTokens,
			"latency_ms", time.Since(start).Milliseconds(),
		)

		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}
		if round >= o.maxToolRounds {
			return "", ErrToolLoop
		}

		params.Messages = append(params.Messages, msg.ToParam())
		for _, call := range msg.ToolCalls {
			out := o.invoke(ctx, call.Function.Name, call.Function.Arguments)
			params.Messages = append(params.Messages, openai.ToolMessage(out, call.ID))
		}
	}
}

func (o *OpenAI) complete(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	return o.client.Chat.Completions.New(ctx, params)
}

// invoke runs one tool. Failures are reported to the model as text so it can
// recover in its answer.
func (o *OpenAI) invoke(ctx context.Context, name, args string) string {
	o.mu.RLock()
	t, ok := o.tools[name]
	o.mu.RUnlock()
	if !ok || t.Handler == nil {
		o.logger.Warn("model called unknown tool", "tool", name)
		return fmt.Sprintf(`{"error":"unknown tool %q"}`, name)
	}
	if args == "" {
		args = "{}"
	}

	out, err := t.Handler(ctx, []byte(args))
	if err != nil {
		o.logger.Warn("tool failed", "tool", name, "error", err)
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	o.logger.Debug("tool returned", "tool", name, "bytes", len(out))
	return out
}

// toolParams must be called with mu held.
func (o *OpenAI) toolParams() []openai.ChatCompletionToolUnionParam {
	if len(o.order) == 0 {
		return nil
	}
	params := make([]openai.ChatCompletionToolUnionParam, 0, len(o.order))
	for _, name := range o.order {
		t := o.tools[name]
		schema := t.Parameters
		if schema == nil {
			schema = Schema()
		}
		params = append(params, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  openai.FunctionParameters(schema),
		}))
	}
	return params
}

var _ Runner = (*OpenAI)(nil)
