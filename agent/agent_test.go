package agent_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/agent"
	"github.com/effective-security/toolrouter/chainer"
	"github.com/effective-security/toolrouter/entities"
	"github.com/effective-security/toolrouter/mocks/mockgeneration"
	"github.com/effective-security/toolrouter/promptbreaker"
	"github.com/effective-security/toolrouter/selector"
	"github.com/effective-security/toolrouter/store"
	"github.com/effective-security/toolrouter/toolclient"
	"github.com/effective-security/toolrouter/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/mock/gomock"
)

const toolsList = `{"tools":[
	{"name":"find_articles_by_entity","description":"Find articles","inputSchema":{
		"type":"object",
		"properties":{"entityName":{"type":"string"},"limit":{"type":"integer"}},
		"required":["entityName"]}},
	{"name":"find_articles_by_entity_and_keywords","description":"Find articles by keywords"},
	{"name":"get_top_mentioned_entities","description":"Top entities","inputSchema":{
		"type":"object",
		"properties":{"limit":{"type":"integer"}},
		"required":["limit"]}},
	{"name":"get_paginated_articles_with_entities","description":"Browse articles"}
]}`

const doubledBraceCall = `{{"action": "use_tool", "tool": "get_top_mentioned_entities", "arguments": {"limit": "10"}}}`

type toolBackend struct {
	server       *httptest.Server
	healthStatus int
	callStatus   int
	tools        string
	calls        atomic.Int32
	lastBody     atomic.Value
}

func newToolBackend(t *testing.T) *toolBackend {
	b := &toolBackend{
		healthStatus: http.StatusOK,
		callStatus:   http.StatusOK,
		tools:        toolsList,
	}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(b.healthStatus)
		case "/tools":
			_, _ = w.Write([]byte(b.tools))
		case "/tools/call":
			b.calls.Add(1)
			body, _ := io.ReadAll(r.Body)
			b.lastBody.Store(string(body))
			w.WriteHeader(b.callStatus)
			if b.callStatus != http.StatusOK {
				_, _ = w.Write([]byte("backend failure"))
				return
			}
			_, _ = w.Write([]byte(`{"result":{"entities":[{"name":"Tesla","count":12},{"name":"NASA","count":7}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *toolBackend) body() gjson.Result {
	s, _ := b.lastBody.Load().(string)
	return gjson.Parse(s)
}

type genCall struct {
	prompt string
	system string
}

// recorder keeps the generation calls and answers them with respond
type recorder struct {
	lock    sync.Mutex
	calls   []genCall
	respond func(n int, prompt, system string) (string, error)
}

func (r *recorder) generate(_ context.Context, prompt, system string) (string, error) {
	r.lock.Lock()
	r.calls = append(r.calls, genCall{prompt: prompt, system: system})
	n := len(r.calls)
	r.lock.Unlock()
	return r.respond(n, prompt, system)
}

func (r *recorder) systems() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	var list []string
	for _, c := range r.calls {
		list = append(list, c.system)
	}
	return list
}

func newAgent(t *testing.T, b *toolBackend, rec *recorder, connectErr error, opts ...agent.Option) *agent.Agent {
	ctrl := gomock.NewController(t)
	gen := mockgeneration.NewMockBackend(ctrl)
	gen.EXPECT().BaseURL().Return("http://localhost:11434").AnyTimes()
	gen.EXPECT().Model().Return("llama3.2:latest").AnyTimes()
	gen.EXPECT().Connect(gomock.Any()).Return(connectErr).AnyTimes()
	if rec != nil {
		gen.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(rec.generate).AnyTimes()
	}

	client := toolclient.New(b.server.URL, tools.NewRegistry(), toolclient.WithHTTPClient(b.server.Client()))
	sel := selector.New(client.Registry(), entities.New(), selector.NewCategorizer(selector.EntityTaxonomy()))
	return agent.New(gen, client, sel, opts...)
}

func initializedAgent(t *testing.T, b *toolBackend, rec *recorder, opts ...agent.Option) *agent.Agent {
	a := newAgent(t, b, rec, nil, opts...)
	require.True(t, a.Initialize(context.Background()))
	return a
}

// toolThenAnswer asks for the tool in the first response and answers with text after
func toolThenAnswer(call, answer string) func(int, string, string) (string, error) {
	return func(_ int, prompt, system string) (string, error) {
		if system == "" && strings.HasPrefix(prompt, "The user asked:") {
			return answer, nil
		}
		return call, nil
	}
}

type parseErrorCallback struct {
	*agent.NoopCallback
	reasons []string
	ended   []string
}

func (c *parseErrorCallback) OnToolCallParseError(_ context.Context, _ string, reason string) {
	c.reasons = append(c.reasons, reason)
}

func (c *parseErrorCallback) OnQueryEnd(_ context.Context, mode, _ string, _ *agent.Result) {
	c.ended = append(c.ended, mode)
}

func TestShouldUseTools(t *testing.T) {
	withTools := func(e *entities.Entities) *selector.Result {
		om := orderedmap.New[string, *selector.Selected]()
		om.Set("search_articles", &selector.Selected{Score: 10})
		return &selector.Result{Entities: e, SelectedTools: om, ToolCount: 1}
	}
	empty := func() *entities.Entities {
		e := entities.New().Extract("")
		e.Intent = "general"
		return e
	}

	assert.False(t, agent.ShouldUseTools("find news", &selector.Result{Entities: empty(), SelectedTools: orderedmap.New[string, *selector.Selected]()}))
	assert.False(t, agent.ShouldUseTools("hello there", withTools(empty())))
	assert.True(t, agent.ShouldUseTools("what are the Latest headlines", withTools(empty())))
	assert.True(t, agent.ShouldUseTools("articles by author", withTools(empty())))

	e := empty()
	e.Intent = "recent"
	assert.True(t, agent.ShouldUseTools("hello there", withTools(e)))

	e = empty()
	e.Dates = []string{"2024-01-01"}
	assert.True(t, agent.ShouldUseTools("hello there", withTools(e)))
}

func TestInitialize(t *testing.T) {
	b := newToolBackend(t)
	a := newAgent(t, b, nil, nil)

	assert.False(t, a.Initialized())
	st := a.Status()
	assert.False(t, st.Initialized)
	assert.Equal(t, b.server.URL, st.ToolBackendURL)
	assert.Equal(t, "http://localhost:11434", st.GenerationURL)

	require.True(t, a.Initialize(context.Background()))
	st = a.Status()
	assert.True(t, st.Initialized)
	assert.True(t, st.ToolBackend)
	assert.True(t, st.Generation)
	assert.Equal(t, 4, st.Tools)
	assert.Equal(t, "llama3.2:latest", st.Model)
	assert.NotEmpty(t, st.RegistryFingerprint)
	assert.Empty(t, st.LastToolError)
	assert.Equal(t, 4, a.Registry().Len())

	t.Run("generation down", func(t *testing.T) {
		a := newAgent(t, newToolBackend(t), nil, errors.New("connection refused"))
		assert.False(t, a.Initialize(context.Background()))
		st := a.Status()
		assert.True(t, st.ToolBackend)
		assert.False(t, st.Generation)
		assert.Equal(t, "connection refused", st.LastGenerationError)
		assert.Equal(t, 4, st.Tools)
	})
}

func TestNotInitialized(t *testing.T) {
	b := newToolBackend(t)
	b.healthStatus = http.StatusServiceUnavailable
	a := newAgent(t, b, nil, nil)

	assert.False(t, a.Initialize(context.Background()))
	st := a.Status()
	assert.False(t, st.ToolBackend)
	assert.Contains(t, st.LastToolError, "status 503")
	assert.Equal(t, 0, st.Tools)

	ctx := context.Background()
	for _, res := range []*agent.Result{
		a.Process(ctx, "Show me recent sports news"),
		a.ProcessWithMemory(ctx, "Show me recent sports news", "c1"),
		a.ProcessWithChaining(ctx, "Show me recent sports news", "c1"),
	} {
		assert.False(t, res.Success)
		assert.Equal(t, agent.NotInitialized, res.Response)
		require.NotNil(t, res.Status)
		assert.False(t, res.Status.Initialized)
	}
	assert.Empty(t, a.Store().List())
}

func TestRefreshTools(t *testing.T) {
	b := newToolBackend(t)
	a := initializedAgent(t, b, nil)

	b.tools = `{"tools":{"tools":[{"name":"get_system_time"}]}}`
	names, err := a.RefreshTools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"get_system_time"}, names)
	assert.Equal(t, 1, a.Status().Tools)

	b.tools = `not json`
	_, err = a.RefreshTools(context.Background())
	require.Error(t, err)
	st := a.Status()
	assert.Equal(t, 1, st.Tools)
	assert.NotEmpty(t, st.LastToolError)
}

func TestProcess_DoubledBraceToolCall(t *testing.T) {
	b := newToolBackend(t)
	rec := &recorder{respond: toolThenAnswer(doubledBraceCall, "Tesla is the most mentioned entity.")}
	a := initializedAgent(t, b, rec)

	res := a.Process(context.Background(), "Show me recent sports news")
	require.True(t, res.Success, res.Error)

	assert.Equal(t, int32(1), b.calls.Load())
	body := b.body()
	assert.Equal(t, "get_top_mentioned_entities", body.Get("name").String())
	limit := body.Get("arguments.limit")
	assert.Equal(t, gjson.Number, limit.Type)
	assert.Equal(t, int64(10), limit.Int())
	assert.True(t, body.Get("id").Exists())

	assert.Equal(t, "get_top_mentioned_entities", res.ToolUsed)
	assert.Equal(t, "Tesla is the most mentioned entity.", res.Response)
	assert.Contains(t, res.FormattedResponse, "<p>Tesla is the most mentioned entity.</p>")
	assert.Equal(t, doubledBraceCall, res.RawLLMResponse)
	assert.Equal(t, map[string]any{"limit": "10"}, res.ToolArguments)
	assert.Equal(t, 1, res.ChunksProcessed)
	assert.Contains(t, res.SelectedTools, "get_top_mentioned_entities")
	assert.Contains(t, res.EntitiesExtracted.Categories, "sports")
	assert.Positive(t, res.ExecutionTime)

	require.NotNil(t, res.ToolData)
	assert.True(t, res.ToolData.Success)
	require.NotNil(t, res.ToolData.ExecutionDetails)
	assert.Equal(t, b.server.URL+"/tools/call", res.ToolData.ExecutionDetails.EndpointUsed)

	require.Len(t, rec.calls, 2)
	assert.Contains(t, rec.calls[0].system, "TOOL USAGE INSTRUCTIONS:")
	assert.Equal(t, "Show me recent sports news", rec.calls[0].prompt)
	assert.Contains(t, rec.calls[1].prompt, "Show me recent sports news")
	assert.Contains(t, rec.calls[1].prompt, "Tesla")
}

func TestProcess_Conversational(t *testing.T) {
	b := newToolBackend(t)
	b.tools = `{"tools":[]}`
	rec := &recorder{respond: func(int, string, string) (string, error) {
		return "I am doing **well**, thanks!", nil
	}}
	a := initializedAgent(t, b, rec)

	res := a.Process(context.Background(), "Hello, how are you?")
	require.True(t, res.Success)
	assert.Equal(t, "I am doing **well**, thanks!", res.Response)
	assert.Contains(t, res.FormattedResponse, "<strong>well</strong>")
	assert.Empty(t, res.ToolUsed)
	assert.Empty(t, res.ErrorInfo)
	assert.Nil(t, res.ToolData)
	assert.Equal(t, int32(0), b.calls.Load())

	require.Len(t, rec.calls, 1)
	assert.Contains(t, rec.calls[0].system, "INSTRUCTIONS:\n- Respond conversationally")
}

func TestProcess_UnknownDirectTool(t *testing.T) {
	b := newToolBackend(t)
	rec := &recorder{respond: func(int, string, string) (string, error) {
		return `{"action": "launch_rockets", "arguments": {}}`, nil
	}}
	cb := &parseErrorCallback{NoopCallback: agent.NewNoopCallback()}
	a := initializedAgent(t, b, rec, agent.WithCallback(cb))

	res := a.Process(context.Background(), "Show me recent sports news")
	assert.True(t, res.Success)
	assert.Empty(t, res.ToolUsed)
	assert.Equal(t, "JSON parsing error: unknown tool name: launch_rockets", res.ErrorInfo)
	assert.Equal(t, `{"action": "launch_rockets", "arguments": {}}`, res.Response)
	assert.Equal(t, int32(0), b.calls.Load())
	assert.Equal(t, []string{"unknown tool name: launch_rockets"}, cb.reasons)
	assert.Equal(t, []string{agent.ModeSingle}, cb.ended)
}

func TestProcess_ToolFailure(t *testing.T) {
	b := newToolBackend(t)
	b.callStatus = http.StatusInternalServerError
	rec := &recorder{respond: toolThenAnswer(doubledBraceCall, "unused")}
	a := initializedAgent(t, b, rec)

	res := a.Process(context.Background(), "Show me recent sports news")
	assert.False(t, res.Success)
	assert.Equal(t, int32(2), b.calls.Load())
	assert.True(t, strings.HasPrefix(res.Response, "Tool execution failed: "), res.Response)
	assert.Contains(t, res.Error, "HTTP 500")
	assert.Equal(t, "get_top_mentioned_entities", res.ToolUsed)
	require.NotNil(t, res.ToolData)
	assert.False(t, res.ToolData.Success)
	assert.Len(t, rec.calls, 1)
}

func TestProcess_GenerationError(t *testing.T) {
	b := newToolBackend(t)
	rec := &recorder{respond: func(int, string, string) (string, error) {
		return "", errors.New("generation backend returned status 500")
	}}
	a := initializedAgent(t, b, rec)

	res := a.Process(context.Background(), "Show me recent sports news")
	assert.False(t, res.Success)
	assert.Equal(t, "Error generating response: generation backend returned status 500", res.Response)
	assert.Equal(t, "generation backend returned status 500", res.Error)

	t.Run("final answer", func(t *testing.T) {
		rec := &recorder{respond: func(n int, _, _ string) (string, error) {
			if n == 1 {
				return doubledBraceCall, nil
			}
			return "", errors.New("timeout")
		}}
		a := initializedAgent(t, newToolBackend(t), rec)
		res := a.Process(context.Background(), "Show me recent sports news")
		assert.False(t, res.Success)
		assert.Equal(t, "get_top_mentioned_entities", res.ToolUsed)
		assert.NotNil(t, res.ToolResult)
		assert.Equal(t, "Error generating response: timeout", res.Response)
	})
}

func TestProcess_MultiChunk(t *testing.T) {
	b := newToolBackend(t)
	rec := &recorder{respond: func(n int, _, _ string) (string, error) {
		if n == 1 {
			return "sunny and warm", nil
		}
		return "why did the gopher cross the road", nil
	}}
	breaker := promptbreaker.New(promptbreaker.WithMaxChunkTokens(10))
	a := initializedAgent(t, b, rec, agent.WithBreaker(breaker))

	res := a.Process(context.Background(), "Tell me about the weather today.\n\nThen tell me a joke please.")
	require.True(t, res.Success)
	assert.Equal(t, 2, res.ChunksProcessed)
	assert.Equal(t, "Part 1: sunny and warm\n\nPart 2: why did the gopher cross the road", res.Response)

	systems := rec.systems()
	require.Len(t, systems, 2)
	assert.True(t, strings.HasPrefix(systems[0], "You are processing part 1 of 2 of a larger query."))
	assert.True(t, strings.HasPrefix(systems[1], "You are processing part 2 of 2 of a larger query."))
	assert.Contains(t, systems[1], "Previous chunk result: sunny and warm...")
	assert.NotContains(t, systems[0], "Previous chunk result")
}

func TestProcessWithMemory(t *testing.T) {
	b := newToolBackend(t)
	rec := &recorder{respond: toolThenAnswer(doubledBraceCall, "Tesla leads the mentions.")}
	a := initializedAgent(t, b, rec)
	ctx := context.Background()

	res := a.ProcessWithMemory(ctx, "Show me recent sports news", "c1")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "c1", res.ConversationID)

	conv, err := a.Store().Conversation("c1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, store.RoleUser, conv.Messages[0].Role)
	assistant := conv.Messages[1]
	assert.Equal(t, store.RoleAssistant, assistant.Role)
	assert.Equal(t, "Tesla leads the mentions.", assistant.Content)
	assert.Equal(t, "get_top_mentioned_entities", assistant.Metadata["tool_used"])
	assert.Equal(t, 1, assistant.Metadata["chunks_processed"])
	assert.Equal(t, "get_top_mentioned_entities", gjson.GetBytes(assistant.RawToolData, "tool_name").String())
	assert.Equal(t, "Tesla", gjson.GetBytes(assistant.RawToolData, "result.entities.0.name").String())

	td, err := a.Store().ToolData("c1")
	require.NoError(t, err)
	assert.Len(t, td.DetailedData, 1)

	res = a.ProcessWithMemory(ctx, "Show me recent sports news", "c1")
	require.True(t, res.Success)
	systems := rec.systems()
	require.Len(t, systems, 4)
	assert.Contains(t, systems[2], "CONVERSATION HISTORY:\nUSER: Show me recent sports news\nASSISTANT: Tesla leads the mentions.\nUSER: Show me recent sports news\n")

	conv, err = a.Store().Conversation("c1")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 4)

	t.Run("default conversation", func(t *testing.T) {
		res := a.ProcessWithMemory(ctx, "Show me recent sports news", "")
		assert.Equal(t, agent.DefaultConversationID, res.ConversationID)
		assert.Contains(t, a.Store().List(), agent.DefaultConversationID)
	})
}

func TestProcessWithMemory_Disabled(t *testing.T) {
	b := newToolBackend(t)
	rec := &recorder{respond: func(int, string, string) (string, error) {
		return "plain answer", nil
	}}
	a := initializedAgent(t, b, rec, agent.WithFeatures(false, false))

	res := a.ProcessWithMemory(context.Background(), "Hello there", "c1")
	assert.True(t, res.Success)
	assert.Equal(t, "c1", res.ConversationID)
	assert.Empty(t, a.Store().List())

	res = a.ProcessWithChaining(context.Background(), "Give me a detailed analysis of sports news", "")
	require.NotNil(t, res.ChainingUsed)
	assert.False(t, *res.ChainingUsed)
	assert.Equal(t, agent.DefaultConversationID, res.ConversationID)
	assert.Empty(t, a.Store().List())
}

func TestProcessWithChaining(t *testing.T) {
	b := newToolBackend(t)
	rec := &recorder{respond: func(_ int, prompt, _ string) (string, error) {
		if strings.HasPrefix(prompt, "You have completed a multi-step analysis chain") {
			return "Sports coverage is growing.", nil
		}
		return "step answer", nil
	}}
	var steps []*chainer.StepResult
	cb := &chainCallback{NoopCallback: agent.NewNoopCallback(), steps: &steps}
	a := initializedAgent(t, b, rec, agent.WithCallback(cb))
	ctx := context.Background()

	res := a.ProcessWithChaining(ctx, "Give me a detailed analysis of sports news", "c2")
	require.True(t, res.Success, res.Error)
	require.NotNil(t, res.ChainingUsed)
	assert.True(t, *res.ChainingUsed)
	assert.Equal(t, chainer.MethodPromptChaining, res.Method)
	assert.Equal(t, "Sports coverage is growing.", res.Response)
	assert.Positive(t, res.ChainStepsExecuted)
	assert.Equal(t, res.ChainStepsExecuted, res.SuccessfulSteps)
	assert.Len(t, res.ChainResults, res.ChainStepsExecuted)
	assert.Len(t, steps, res.ChainStepsExecuted)
	assert.Equal(t, "c2", res.ConversationID)

	conv, err := a.Store().Conversation("c2")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, chainer.MethodPromptChaining, conv.Messages[1].Metadata["method"])

	res = a.ProcessWithChaining(ctx, "Hello there", "c2")
	require.NotNil(t, res.ChainingUsed)
	assert.False(t, *res.ChainingUsed)
	assert.Equal(t, "step answer", res.Response)

	conv, err = a.Store().Conversation("c2")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 4)
}

type chainCallback struct {
	*agent.NoopCallback
	steps *[]*chainer.StepResult
}

func (c *chainCallback) OnChainStep(_ context.Context, step *chainer.StepResult) {
	*c.steps = append(*c.steps, step)
}

func TestAnalyze(t *testing.T) {
	a := initializedAgent(t, newToolBackend(t), nil)

	res := a.Analyze("Show me recent sports news")
	assert.Equal(t, "Show me recent sports news", res.Query)
	assert.Positive(t, res.Selection.ToolCount)
	assert.Contains(t, res.Context, "sports")
	require.NotNil(t, res.Chain)
	assert.Equal(t, res.Selection.Entities.ComplexityScore(), res.Chain.ComplexityScore)

	res = a.Analyze("Write a comprehensive report on sports")
	assert.True(t, res.Chain.NeedsChaining)
	assert.NotEmpty(t, res.Chain.Steps)
}
