package callbacks_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/effective-security/toolrouter/agent"
	"github.com/effective-security/toolrouter/callbacks"
	"github.com/effective-security/toolrouter/chainer"
	"github.com/effective-security/toolrouter/toolclient"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
)

func emit(ctx context.Context, cb agent.Callback) {
	cb.OnQueryStart(ctx, agent.ModeSingle, "test input")
	cb.OnGenerationStart(ctx, "prompt", "system")
	cb.OnGenerationEnd(ctx, "generated")
	cb.OnGenerationError(ctx, errors.New("gen error"))
	cb.OnToolCallParseError(ctx, "{bad", "invalid JSON")
	cb.OnToolStart(ctx, "test-tool", map[string]any{"limit": 10})
	cb.OnToolEnd(ctx, "test-tool", &toolclient.Result{Success: true, Result: "test output"})
	cb.OnToolError(ctx, "test-tool", errors.New("test error"))
	cb.OnToolNotFound(ctx, "missing-tool")
	cb.OnChainStep(ctx, &chainer.StepResult{StepID: 1, StepType: chainer.StepSynthesis, Success: true, Response: "step output"})
	cb.OnQueryEnd(ctx, agent.ModeSingle, "test input", &agent.Result{Response: "final answer", Success: true, ExecutionTime: 1.5})
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	emit(context.Background(), callbacks.NewPrinter(&buf, callbacks.ModeVerbose))

	res := buf.String()
	assert.Contains(t, res, "Query Start: single")
	assert.Contains(t, res, "Input: test input")
	assert.Contains(t, res, "Generation Call: 6 prompt bytes, 6 system bytes")
	assert.Contains(t, res, "Response: generated")
	assert.Contains(t, res, "Generation Error: gen error")
	assert.Contains(t, res, "Tool Call Parse Error: invalid JSON")
	assert.Contains(t, res, "Tool Start: test-tool")
	assert.Contains(t, res, `Input: {"limit":10}`)
	assert.Contains(t, res, "Tool End: test-tool")
	assert.Contains(t, res, `Output: "test output"`)
	assert.Contains(t, res, "Tool Error: test-tool: test error")
	assert.Contains(t, res, "Tool Not Found: missing-tool")
	assert.Contains(t, res, "Chain Step 1: synthesis, success: true\nstep output")
	assert.Contains(t, res, "Query End: single, success: true, 1.50s\nfinal answer")

	buf.Reset()
	emit(context.Background(), callbacks.NewPrinter(&buf, callbacks.ModeDefault))
	res = buf.String()
	assert.Contains(t, res, "Tool End: test-tool")
	assert.NotContains(t, res, "Output:")
	assert.NotContains(t, res, "final answer")
}

func TestFanout(t *testing.T) {
	var b1, b2 bytes.Buffer
	fan := callbacks.NewFanout(callbacks.NewPrinter(&b1, callbacks.ModeDefault))
	fan.Add(callbacks.NewPrinter(&b2, callbacks.ModeDefault))
	fan.Add(callbacks.NewNoop())
	fan.Add(callbacks.NewPackageLogger(xlog.NewPackageLogger("github.com/effective-security/toolrouter", "callbacks_test")))

	emit(context.Background(), fan)
	assert.NotEmpty(t, b1.String())
	assert.Equal(t, b1.String(), b2.String())
}
