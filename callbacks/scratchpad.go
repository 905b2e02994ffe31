package callbacks

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/effective-security/toolrouter/agent"
	"github.com/effective-security/toolrouter/chainer"
	"github.com/effective-security/toolrouter/chatmodel"
	"github.com/effective-security/toolrouter/pkg/llmutils"
	"github.com/effective-security/toolrouter/toolclient"
)

var TimeNowFn = time.Now

// RunStats are the counters of a single request
type RunStats struct {
	ConversationID string `json:"conversation_id"`
	RequestID      string `json:"request_id"`

	Duration              time.Duration `json:"duration"`
	Queries               uint32        `json:"queries"`
	QueriesFailed         uint32        `json:"queries_failed"`
	GenerationCalls       uint32        `json:"generation_calls"`
	GenerationCallsFailed uint32        `json:"generation_calls_failed"`
	GenerationBytesOut    uint64        `json:"generation_bytes_out"`
	GenerationBytesIn     uint64        `json:"generation_bytes_in"`
	ToolCallParseErrors   uint32        `json:"tool_call_parse_errors"`
	ToolsCalls            uint32        `json:"tools_calls"`
	ToolsCallsSucceeded   uint32        `json:"tools_calls_succeeded"`
	ToolsCallsFailed      uint32        `json:"tools_calls_failed"`
	ToolNotFound          uint32        `json:"tool_not_found"`
	ChainSteps            uint32        `json:"chain_steps"`
	ChainStepsFailed      uint32        `json:"chain_steps_failed"`
}

// Scratchpad is a callback handler that records the events of each request,
// runs are keyed by the request ID of the chat context.
type Scratchpad struct {
	runs map[string]*run
	mode Mode
	lock sync.Mutex
}

func NewScratchpad(mode Mode) *Scratchpad {
	return &Scratchpad{
		runs: make(map[string]*run),
		mode: mode,
	}
}

func (l *Scratchpad) StartRun(ctx context.Context) {
	chatCtx := chatmodel.GetChatContext(ctx)
	if chatCtx == nil {
		return
	}

	r := &run{
		stats: RunStats{
			ConversationID: chatCtx.ConversationID(),
			RequestID:      chatCtx.RequestID(),
		},
		chatCtx: chatCtx,
		started: time.Now(),
	}

	l.lock.Lock()
	l.runs[chatCtx.RequestID()] = r
	l.lock.Unlock()

	r.print("*** Run Started ***")
}

func (l *Scratchpad) EndRun(ctx context.Context) (*RunStats, []byte) {
	run := l.getRun(ctx)
	if run == nil {
		return nil, nil
	}

	stats := run.stats
	stats.Duration = time.Since(run.started)

	run.print(fmt.Sprintf("Queries: %d, Failed: %d",
		stats.Queries,
		stats.QueriesFailed,
	))
	run.print(fmt.Sprintf("Tool calls: %d, Failed: %d, Not Found: %d, Parse Errors: %d",
		stats.ToolsCalls,
		stats.ToolsCallsFailed,
		stats.ToolNotFound,
		stats.ToolCallParseErrors,
	))
	run.print(fmt.Sprintf("Generation calls: %d, Failed: %d, Bytes Out: %d, Bytes In: %d, Bytes Total: %d",
		stats.GenerationCalls,
		stats.GenerationCallsFailed,
		stats.GenerationBytesOut,
		stats.GenerationBytesIn,
		stats.GenerationBytesOut+stats.GenerationBytesIn,
	))
	if stats.ChainSteps > 0 {
		run.print(fmt.Sprintf("Chain steps: %d, Failed: %d", stats.ChainSteps, stats.ChainStepsFailed))
	}

	run.print(fmt.Sprintf("*** Run Ended. Duration: %s ***", stats.Duration))

	l.lock.Lock()
	delete(l.runs, run.chatCtx.RequestID())
	l.lock.Unlock()

	return &stats, run.w.Bytes()
}

func (l *Scratchpad) getRun(ctx context.Context) *run {
	chatCtx := chatmodel.GetChatContext(ctx)
	if chatCtx == nil {
		return nil
	}

	l.lock.Lock()
	defer l.lock.Unlock()
	return l.runs[chatCtx.RequestID()]
}

func (l *Scratchpad) OnQueryStart(ctx context.Context, mode, query string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.Queries, 1)
	run.print(mode, "*** Query Start ***")
	run.print(mode, "Input:", query)
}

func (l *Scratchpad) OnQueryEnd(ctx context.Context, mode, query string, res *agent.Result) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	if !res.Success {
		atomic.AddUint32(&run.stats.QueriesFailed, 1)
	}
	if l.mode == ModeVerbose {
		run.print(mode, "Output:")
		run.print(res.Response)
	}
	run.print(mode, "*** Query End ***", "success:", strconv.FormatBool(res.Success))
}

func (l *Scratchpad) OnGenerationStart(ctx context.Context, prompt, system string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	size := uint64(len(prompt) + len(system))
	atomic.AddUint32(&run.stats.GenerationCalls, 1)
	atomic.AddUint64(&run.stats.GenerationBytesOut, size)

	run.print("*** Generation Call ***", fmt.Sprintf("%d bytes", size))
	if l.mode == ModeVerbose {
		run.print("Prompt:", llmutils.Truncate(prompt, verboseLimit))
	}
}

func (l *Scratchpad) OnGenerationEnd(ctx context.Context, response string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint64(&run.stats.GenerationBytesIn, uint64(len(response)))
	run.print("*** Generation Call End ***", fmt.Sprintf("%d bytes", len(response)))
}

func (l *Scratchpad) OnGenerationError(ctx context.Context, err error) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.GenerationCallsFailed, 1)
	run.print("*** Generation Error ***", err.Error())
}

func (l *Scratchpad) OnToolCallParseError(ctx context.Context, response, reason string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolCallParseErrors, 1)
	run.print("*** Tool Call Parse Error ***", reason)
	run.print("Response:", response)
}

func (l *Scratchpad) OnToolStart(ctx context.Context, tool string, args map[string]any) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolsCalls, 1)
	run.print(tool, "*** Tool Start ***")
	run.print(tool, "Input:", llmutils.ToJSON(args))
}

func (l *Scratchpad) OnToolEnd(ctx context.Context, tool string, res *toolclient.Result) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolsCallsSucceeded, 1)
	if l.mode == ModeVerbose {
		run.print(tool, "Output:", llmutils.Truncate(llmutils.ToJSON(res.Result), verboseLimit))
	}
	run.print(tool, "*** Tool End ***")
}

func (l *Scratchpad) OnToolError(ctx context.Context, tool string, err error) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolsCallsFailed, 1)
	run.print(tool, "*** Tool Error ***", err.Error())
}

func (l *Scratchpad) OnToolNotFound(ctx context.Context, tool string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolNotFound, 1)
	run.print("*** Tool Not Found ***", tool)
}

func (l *Scratchpad) OnChainStep(ctx context.Context, step *chainer.StepResult) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ChainSteps, 1)
	if !step.Success {
		atomic.AddUint32(&run.stats.ChainStepsFailed, 1)
	}
	run.print("*** Chain Step ***", strconv.Itoa(step.StepID), step.StepType, "success:", strconv.FormatBool(step.Success))
	if step.Error != "" {
		run.print("Error:", step.Error)
	}
}

type run struct {
	chatCtx chatmodel.ChatContext
	w       bytes.Buffer
	started time.Time
	lock    sync.Mutex
	stats   RunStats
}

// print writes the entries to the run's output.
// The entries are written in the following format:
// [timestamp conversationID.requestID] entry entry\n
func (r *run) print(entries ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	now := TimeNowFn()
	ts := now.Format("2006-01-02 15:04:05")

	_, _ = r.w.WriteString(ts)
	_, _ = r.w.WriteString(" ")
	_, _ = r.w.WriteString(r.chatCtx.ConversationID())
	_, _ = r.w.WriteString(".")
	_, _ = r.w.WriteString(r.chatCtx.RequestID())
	_, _ = r.w.WriteString(" ")

	for i, entry := range entries {
		if i > 0 {
			_, _ = r.w.WriteString(" ")
		}
		_, _ = r.w.WriteString(entry)
	}
	_, _ = r.w.WriteString("\n")
}
