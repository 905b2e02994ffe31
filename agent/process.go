package agent

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/chainer"
	"github.com/effective-security/toolrouter/pkg/llmutils"
	"github.com/effective-security/toolrouter/pkg/metricskey"
	"github.com/effective-security/toolrouter/promptbreaker"
	"github.com/effective-security/toolrouter/selector"
	"github.com/effective-security/toolrouter/store"
	"github.com/effective-security/toolrouter/toolcall"
	"github.com/effective-security/toolrouter/toolclient"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

// toolIntents are the intents that call for a tool
var toolIntents = []string{"search", "list", "recent", "specific"}

// toolKeywords are the query words that call for a tool
var toolKeywords = []string{
	"find", "search", "show", "get", "list", "recent", "latest",
	"articles", "news", "by author", "category", "date", "when",
}

// chunkResultPrefix is the number of runes of a chunk response passed to the next chunk
const chunkResultPrefix = 200

// ShouldUseTools returns true if the query should be answered with a tool:
// at least one tool is selected, and the intent, a tool keyword or
// a populated entity field asks for data.
func ShouldUseTools(query string, sel *selector.Result) bool {
	if sel.ToolCount == 0 {
		return false
	}
	e := sel.Entities
	for _, intent := range toolIntents {
		if e.Intent == intent {
			return true
		}
	}
	lower := strings.ToLower(query)
	for _, kw := range toolKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return len(e.Dates) > 0 ||
		len(e.Categories) > 0 ||
		len(e.Authors) > 0 ||
		len(e.SearchTerms) > 0 ||
		len(e.TimeKeywords) > 0
}

// Process answers the query without the conversation memory
func (a *Agent) Process(ctx context.Context, query string) *Result {
	if res := a.notInitialized(); res != nil {
		return res
	}
	started := time.Now()
	a.cfg.CallbackHandler.OnQueryStart(ctx, ModeSingle, query)

	res := a.process(ctx, a.selector.Select(query), query, "")
	return a.finish(ctx, ModeSingle, query, res, started)
}

// ProcessWithMemory answers the query with the recalled conversation history in the context,
// and stores both turns in the conversation.
func (a *Agent) ProcessWithMemory(ctx context.Context, query, conversationID string) *Result {
	if res := a.notInitialized(); res != nil {
		return res
	}
	started := time.Now()
	a.cfg.CallbackHandler.OnQueryStart(ctx, ModeMemory, query)

	res := a.processWithMemory(ctx, a.selector.Select(query), query, conversationID)
	return a.finish(ctx, ModeMemory, query, res, started)
}

// ProcessWithChaining executes the query as a chain of steps when it is complex enough,
// otherwise it is processed with the conversation memory.
func (a *Agent) ProcessWithChaining(ctx context.Context, query, conversationID string) *Result {
	if res := a.notInitialized(); res != nil {
		return res
	}
	started := time.Now()
	a.cfg.CallbackHandler.OnQueryStart(ctx, ModeChain, query)

	sel := a.selector.Select(query)
	analysis := chainer.Analyze(query, sel.Entities)

	used := a.cfg.ChainingEnabled && analysis.NeedsChaining
	var res *Result
	if used {
		logger.ContextKV(ctx, xlog.INFO,
			"status", "chain_detected",
			"complexity", analysis.ComplexityScore,
			"steps", len(analysis.Steps),
		)
		res = a.processChain(ctx, sel, query, conversationID, analysis.Steps)
		res.ComplexityScore = analysis.ComplexityScore
	} else {
		res = a.processWithMemory(ctx, sel, query, conversationID)
	}
	res.ChainingUsed = &used
	return a.finish(ctx, ModeChain, query, res, started)
}

func (a *Agent) notInitialized() *Result {
	if a.Initialized() {
		return nil
	}
	return &Result{
		Response: NotInitialized,
		Success:  false,
		Status:   a.Status(),
	}
}

func (a *Agent) finish(ctx context.Context, mode, query string, res *Result, started time.Time) *Result {
	res.ExecutionTime = time.Since(started).Seconds()

	metricskey.PerfQuery.MeasureSince(started, mode)
	metricskey.StatsQueriesProcessed.IncrCounter(1, mode)
	if !res.Success {
		metricskey.StatsQueriesFailed.IncrCounter(1, mode)
	}

	logger.ContextKV(ctx, xlog.INFO,
		"status", "processed",
		"mode", mode,
		"success", res.Success,
		"tool", res.ToolUsed,
		"chunks", res.ChunksProcessed,
		"elapsed", res.ExecutionTime,
	)
	a.cfg.CallbackHandler.OnQueryEnd(ctx, mode, query, res)
	return res
}

// process selects the prompt chunks and answers them
func (a *Agent) process(ctx context.Context, sel *selector.Result, query, extraContext string) *Result {
	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "tools_selected",
		"count", sel.ToolCount,
		"categories", sel.RelevantCategories,
		"tools", sel.ToolNames(),
	)

	chunks := a.cfg.Breaker.Break(query, selector.BuildContext(sel)+extraContext)

	var res *Result
	if len(chunks) == 1 {
		res = a.processChunk(ctx, chunks[0], sel)
	} else {
		res = a.processChunks(ctx, chunks, sel)
	}

	res.ChunksProcessed = len(chunks)
	res.EntitiesExtracted = sel.Entities
	res.RelevantCategories = sel.RelevantCategories
	res.SelectedTools = sel.ToolNames()
	return res
}

func (a *Agent) processWithMemory(ctx context.Context, sel *selector.Result, query, conversationID string) *Result {
	id := values.StringsCoalesce(conversationID, DefaultConversationID)
	if !a.cfg.MemoryEnabled {
		res := a.process(ctx, sel, query, "")
		res.ConversationID = id
		return res
	}

	started := time.Now()
	a.cfg.Store.Append(id, store.RoleUser, query)

	history := a.cfg.Store.Recall(id, a.cfg.RecallTokens)
	summary := a.cfg.Store.Summary(id)

	res := a.process(ctx, sel, query, memoryContext(history, summary, a.cfg.HistoryTurns))
	res.ConversationID = id

	metadata := map[string]any{
		"tool_used":        res.ToolUsed,
		"execution_time":   time.Since(started).Seconds(),
		"chunks_processed": res.ChunksProcessed,
	}
	opts := []store.AppendOption{store.WithMetadata(metadata)}
	if res.ToolData != nil {
		raw, err := json.Marshal(res.ToolData)
		if err != nil {
			logger.ContextKV(ctx, xlog.ERROR,
				"status", "tool_data_marshal_failed",
				"err", err.Error(),
			)
		} else {
			opts = append(opts, store.WithRawToolData(raw))
		}
	}
	a.cfg.Store.Append(id, store.RoleAssistant, res.Response, opts...)
	return res
}

// memoryContext returns the history block appended to the selection context
func memoryContext(history []store.Turn, summary string, turns int) string {
	var b strings.Builder
	if len(history) > 0 {
		if len(history) > turns {
			history = history[len(history)-turns:]
		}
		b.WriteString("\n\nCONVERSATION HISTORY:\n")
		for _, t := range history {
			b.WriteString(strings.ToUpper(t.Role))
			b.WriteString(": ")
			b.WriteString(t.Content)
			b.WriteString("\n")
		}
	}
	if summary != "" {
		b.WriteString("\nCONVERSATION SUMMARY: ")
		b.WriteString(summary)
		b.WriteString("\n")
	}
	return b.String()
}

func (a *Agent) processChunk(ctx context.Context, chunk promptbreaker.Chunk, sel *selector.Result) *Result {
	var system string
	if ShouldUseTools(chunk.Content, sel) {
		system = a.cfg.Prompts.ToolSystem(chunk.Context, sel.ToolNames())
	} else {
		system = a.cfg.Prompts.Conversational(chunk.Context)
	}

	response, err := a.generate(ctx, chunk.Content, system)
	if err != nil {
		return generationFailed(err)
	}
	return a.handleResponse(ctx, response, chunk.Content)
}

func (a *Agent) processChunks(ctx context.Context, chunks []promptbreaker.Chunk, sel *selector.Result) *Result {
	withTools := sel.ToolCount > 0
	toolNames := sel.ToolNames()

	var results []*Result
	var accumulated strings.Builder
	for _, chunk := range chunks {
		system := a.cfg.Prompts.Chunk(chunk.ID+1, chunk.TotalChunks, chunk.Context+accumulated.String(), toolNames, withTools)

		var res *Result
		response, err := a.generate(ctx, chunk.Content, system)
		if err != nil {
			res = generationFailed(err)
		} else {
			res = a.handleResponse(ctx, response, chunk.Content)
		}
		results = append(results, res)

		if res.Success {
			accumulated.WriteString("\n\nPrevious chunk result: ")
			accumulated.WriteString(runePrefix(res.Response, chunkResultPrefix))
			accumulated.WriteString("...")
		}
	}
	return aggregate(results)
}

// aggregate returns the last tool result of the chunks,
// otherwise the successful responses joined as parts.
func aggregate(results []*Result) *Result {
	if len(results) == 0 {
		return &Result{Response: "No results from chunks"}
	}
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].ToolUsed != "" {
			return results[i]
		}
	}

	var b strings.Builder
	for i, r := range results {
		if r.Success {
			b.WriteString("Part " + strconv.Itoa(i+1) + ": " + r.Response + "\n\n")
		}
	}
	response := strings.TrimSpace(b.String())
	return &Result{
		Response:          response,
		FormattedResponse: llmutils.MarkdownToHTML(response),
		Success:           true,
	}
}

// handleResponse executes the tool call requested by the model,
// any other response is the conversational answer.
func (a *Agent) handleResponse(ctx context.Context, response, query string) *Result {
	tc := toolcall.Parse(response)
	if d, ok := tc.(toolcall.DirectTool); ok {
		if _, found := a.tools.Resolve(d.Name); !found {
			tc = toolcall.NoTool{Text: strings.TrimSpace(response), Reason: "unknown tool name: " + d.Name}
		}
	}

	name, args, ok := toolcall.Invocation(tc)
	if !ok {
		nt := tc.(toolcall.NoTool)
		res := &Result{
			Response:          nt.Text,
			FormattedResponse: llmutils.MarkdownToHTML(nt.Text),
			Success:           true,
		}
		if nt.Reason != "" {
			metricskey.StatsToolCallParseErrors.IncrCounter(1, "response")
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "not_a_tool_call",
				"reason", nt.Reason,
			)
			a.cfg.CallbackHandler.OnToolCallParseError(ctx, response, nt.Reason)
			res.ErrorInfo = "JSON parsing error: " + nt.Reason
		}
		return res
	}

	return a.executeTool(ctx, name, args, response, query)
}

func (a *Agent) executeTool(ctx context.Context, name string, args map[string]any, response, query string) *Result {
	cb := a.cfg.CallbackHandler
	cb.OnToolStart(ctx, name, args)

	tr := a.tools.Execute(ctx, name, args)
	if !tr.Success {
		if errors.Is(tr.Err, toolclient.ErrToolNotFound) {
			cb.OnToolNotFound(ctx, name)
		}
		cb.OnToolError(ctx, name, errors.New(tr.Error))
		return &Result{
			Response:       "Tool execution failed: " + tr.Error,
			Success:        false,
			Error:          tr.Error,
			ToolUsed:       name,
			RawLLMResponse: response,
			ToolData: &ToolData{
				ToolName:  name,
				Arguments: args,
				Success:   false,
				Error:     tr.Error,
			},
		}
	}
	cb.OnToolEnd(ctx, name, tr)

	toolName := values.StringsCoalesce(tr.ToolName, name)
	res := &Result{
		Success:        true,
		ToolUsed:       toolName,
		ToolArguments:  args,
		ToolResult:     tr,
		RawLLMResponse: response,
		ToolData: &ToolData{
			ToolName:  toolName,
			Arguments: args,
			Result:    tr.Result,
			Success:   true,
			ExecutionDetails: &ExecutionDetails{
				EndpointUsed:     tr.EndpointUsed,
				Method:           tr.Method,
				OriginalToolName: tr.OriginalToolName,
			},
		},
	}

	final, err := a.generate(ctx, a.cfg.Prompts.FinalAnswer(query, toolName, tr.Result), "")
	if err != nil {
		res.Success = false
		res.Error = err.Error()
		final = "Error generating response: " + err.Error()
	}
	res.Response = final
	res.FormattedResponse = llmutils.MarkdownToHTML(final)
	return res
}

func (a *Agent) generate(ctx context.Context, prompt, system string) (string, error) {
	cb := a.cfg.CallbackHandler
	cb.OnGenerationStart(ctx, prompt, system)
	response, err := a.gen.Generate(ctx, prompt, system)
	if err != nil {
		cb.OnGenerationError(ctx, err)
		return "", err
	}
	cb.OnGenerationEnd(ctx, response)
	return response, nil
}

func generationFailed(err error) *Result {
	msg := "Error generating response: " + err.Error()
	return &Result{
		Response:          msg,
		FormattedResponse: llmutils.MarkdownToHTML(msg),
		Success:           false,
		Error:             err.Error(),
	}
}

func runePrefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
