package agent

import (
	"context"

	"github.com/effective-security/toolrouter/chainer"
	"github.com/effective-security/toolrouter/toolclient"
)

// Callback receives the pipeline events of the Agent
type Callback interface {
	OnQueryStart(ctx context.Context, mode, query string)
	OnQueryEnd(ctx context.Context, mode, query string, res *Result)
	OnGenerationStart(ctx context.Context, prompt, system string)
	OnGenerationEnd(ctx context.Context, response string)
	OnGenerationError(ctx context.Context, err error)
	// OnToolCallParseError is called when the model response looked like a tool call but was not valid
	OnToolCallParseError(ctx context.Context, response, reason string)
	OnToolStart(ctx context.Context, tool string, args map[string]any)
	OnToolEnd(ctx context.Context, tool string, res *toolclient.Result)
	OnToolError(ctx context.Context, tool string, err error)
	OnToolNotFound(ctx context.Context, tool string)
	OnChainStep(ctx context.Context, step *chainer.StepResult)
}

// NoopCallback does nothing.
type NoopCallback struct{}

func NewNoopCallback() *NoopCallback {
	return &NoopCallback{}
}

var _ Callback = (*NoopCallback)(nil)

func (l *NoopCallback) OnQueryStart(ctx context.Context, mode, query string)               {}
func (l *NoopCallback) OnQueryEnd(ctx context.Context, mode, query string, res *Result)    {}
func (l *NoopCallback) OnGenerationStart(ctx context.Context, prompt, system string)       {}
func (l *NoopCallback) OnGenerationEnd(ctx context.Context, response string)               {}
func (l *NoopCallback) OnGenerationError(ctx context.Context, err error)                   {}
func (l *NoopCallback) OnToolCallParseError(ctx context.Context, response, reason string)  {}
func (l *NoopCallback) OnToolStart(ctx context.Context, tool string, args map[string]any)  {}
func (l *NoopCallback) OnToolEnd(ctx context.Context, tool string, res *toolclient.Result) {}
func (l *NoopCallback) OnToolError(ctx context.Context, tool string, err error)            {}
func (l *NoopCallback) OnToolNotFound(ctx context.Context, tool string)                    {}
func (l *NoopCallback) OnChainStep(ctx context.Context, step *chainer.StepResult)          {}
