package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/toolrouter/agent"
	"github.com/effective-security/toolrouter/chainer"
	"github.com/effective-security/toolrouter/pkg/llmutils"
	"github.com/effective-security/toolrouter/toolclient"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ agent.Callback = (*Noop)(nil)
	_ agent.Callback = (*Printer)(nil)
	_ agent.Callback = (*PackageLogger)(nil)
	_ agent.Callback = (*Fanout)(nil)
	_ agent.Callback = (*Scratchpad)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// verboseLimit is the number of runes of prompts and responses printed in verbose mode
const verboseLimit = 500

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []agent.Callback
}

func NewFanout(callbacks ...agent.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback agent.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnQueryStart(ctx context.Context, mode, query string) {
	for _, callback := range l.callbacks {
		callback.OnQueryStart(ctx, mode, query)
	}
}

func (l *Fanout) OnQueryEnd(ctx context.Context, mode, query string, res *agent.Result) {
	for _, callback := range l.callbacks {
		callback.OnQueryEnd(ctx, mode, query, res)
	}
}

func (l *Fanout) OnGenerationStart(ctx context.Context, prompt, system string) {
	for _, callback := range l.callbacks {
		callback.OnGenerationStart(ctx, prompt, system)
	}
}

func (l *Fanout) OnGenerationEnd(ctx context.Context, response string) {
	for _, callback := range l.callbacks {
		callback.OnGenerationEnd(ctx, response)
	}
}

func (l *Fanout) OnGenerationError(ctx context.Context, err error) {
	for _, callback := range l.callbacks {
		callback.OnGenerationError(ctx, err)
	}
}

func (l *Fanout) OnToolCallParseError(ctx context.Context, response, reason string) {
	for _, callback := range l.callbacks {
		callback.OnToolCallParseError(ctx, response, reason)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, tool string, args map[string]any) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, tool, args)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, tool string, res *toolclient.Result) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, tool, res)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, tool string, err error) {
	for _, callback := range l.callbacks {
		callback.OnToolError(ctx, tool, err)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, tool string) {
	for _, callback := range l.callbacks {
		callback.OnToolNotFound(ctx, tool)
	}
}

func (l *Fanout) OnChainStep(ctx context.Context, step *chainer.StepResult) {
	for _, callback := range l.callbacks {
		callback.OnChainStep(ctx, step)
	}
}

// Noop does nothing.
type Noop struct {
	agent.NoopCallback
}

func NewNoop() *Noop {
	return &Noop{}
}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnQueryStart(ctx context.Context, mode, query string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Query Start: %s\n", mode)
	fmt.Fprintf(l.Out, "Input: %s\n", query)
}

func (l *Printer) OnQueryEnd(ctx context.Context, mode, query string, res *agent.Result) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Query End: %s, success: %t, %.2fs\n", mode, res.Success, res.ExecutionTime)
	if l.Mode == ModeVerbose {
		fmt.Fprintln(l.Out, res.Response)
	}
}

func (l *Printer) OnGenerationStart(ctx context.Context, prompt, system string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Generation Call: %d prompt bytes, %d system bytes\n", len(prompt), len(system))
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Prompt: %s\n", llmutils.Truncate(prompt, verboseLimit))
	}
}

func (l *Printer) OnGenerationEnd(ctx context.Context, response string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Generation Call End: %d bytes\n", len(response))
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Response: %s\n", llmutils.Truncate(response, verboseLimit))
	}
}

func (l *Printer) OnGenerationError(ctx context.Context, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Generation Error: %s\n", err.Error())
}

func (l *Printer) OnToolCallParseError(ctx context.Context, response, reason string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Call Parse Error: %s\n", reason)
	fmt.Fprintf(l.Out, "Response: %s\n", response)
}

func (l *Printer) OnToolStart(ctx context.Context, tool string, args map[string]any) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Start: %s\n", tool)
	fmt.Fprintf(l.Out, "Input: %s\n", llmutils.ToJSON(args))
}

func (l *Printer) OnToolEnd(ctx context.Context, tool string, res *toolclient.Result) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool End: %s\n", tool)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s\n", llmutils.Truncate(llmutils.ToJSON(res.Result), verboseLimit))
	}
}

func (l *Printer) OnToolError(ctx context.Context, tool string, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Error: %s: %s\n", tool, err.Error())
}

func (l *Printer) OnToolNotFound(ctx context.Context, tool string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Not Found: %s\n", tool)
}

func (l *Printer) OnChainStep(ctx context.Context, step *chainer.StepResult) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Chain Step %d: %s, success: %t\n", step.StepID, step.StepType, step.Success)
	if l.Mode == ModeVerbose && step.Response != "" {
		fmt.Fprintln(l.Out, llmutils.Truncate(step.Response, verboseLimit))
	}
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnQueryStart(ctx context.Context, mode, query string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "query_start",
		"mode", mode,
		"query", query,
	)
}

func (l *PackageLogger) OnQueryEnd(ctx context.Context, mode, query string, res *agent.Result) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "query_end",
		"mode", mode,
		"success", res.Success,
		"tool", res.ToolUsed,
		"elapsed", res.ExecutionTime,
	)
}

func (l *PackageLogger) OnGenerationStart(ctx context.Context, prompt, system string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "generation_start",
		"prompt_bytes", len(prompt),
		"system_bytes", len(system),
	)
}

func (l *PackageLogger) OnGenerationEnd(ctx context.Context, response string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "generation_end",
		"bytes", len(response),
	)
}

func (l *PackageLogger) OnGenerationError(ctx context.Context, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "generation_error",
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnToolCallParseError(ctx context.Context, response, reason string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_call_parse_error",
		"reason", reason,
		"response", response,
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, tool string, args map[string]any) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"tool", tool,
		"args", args,
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, tool string, res *toolclient.Result) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"tool", tool,
		"method", res.Method,
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, tool string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"tool", tool,
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, tool string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_not_found",
		"tool", tool,
	)
}

func (l *PackageLogger) OnChainStep(ctx context.Context, step *chainer.StepResult) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "chain_step",
		"step", step.StepID,
		"type", step.StepType,
		"tool", step.ToolUsed,
		"success", step.Success,
	)
}
