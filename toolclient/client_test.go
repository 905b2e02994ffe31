package toolclient_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/toolclient"
	"github.com/effective-security/toolrouter/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const toolsList = `{"tools":[
	{"name":"find_articles_by_entity","description":"Find articles","inputSchema":{
		"type":"object",
		"properties":{"entityName":{"type":"string"},"limit":{"type":"integer"}},
		"required":["entityName"]}},
	{"name":"get_top_mentioned_entities","description":"Top entities","inputSchema":{
		"type":"object",
		"properties":{"limit":{"type":"integer"},"includeCounts":{"type":"boolean"}},
		"required":["limit"]}},
	{"name":"get_paginated_articles_with_entities"},
	{"description":"no name"}
]}`

type backend struct {
	server    *httptest.Server
	hits      atomic.Int32
	calls     atomic.Int32
	lastBody  atomic.Value
	callCodes []int
	callBody  string
	tools     string
}

func newBackend(t *testing.T) *backend {
	b := &backend{
		tools:    toolsList,
		callBody: `{"result":{"articles":[{"title":"one"}]}}`,
	}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/tools":
			_, _ = w.Write([]byte(b.tools))
		case "/tools/call":
			n := int(b.calls.Add(1))
			body, _ := io.ReadAll(r.Body)
			b.lastBody.Store(string(body))
			if n <= len(b.callCodes) && b.callCodes[n-1] != http.StatusOK {
				w.WriteHeader(b.callCodes[n-1])
				_, _ = w.Write([]byte("backend failure"))
				return
			}
			_, _ = w.Write([]byte(b.callBody))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *backend) body() gjson.Result {
	s, _ := b.lastBody.Load().(string)
	return gjson.Parse(s)
}

func newClient(t *testing.T, b *backend) *toolclient.Client {
	c := toolclient.New(b.server.URL, tools.NewRegistry(), toolclient.WithHTTPClient(b.server.Client()))
	n, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)
	return c
}

func TestHealth(t *testing.T) {
	b := newBackend(t)
	c := toolclient.New(b.server.URL+"/", tools.NewRegistry(), toolclient.WithHTTPClient(b.server.Client()))
	assert.Equal(t, b.server.URL, c.BaseURL())
	require.NoError(t, c.Health(context.Background()))

	down := toolclient.New("http://127.0.0.1:1", tools.NewRegistry())
	err := down.Health(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, toolclient.ErrTransport))
}

func TestRefresh(t *testing.T) {
	b := newBackend(t)
	reg := tools.NewRegistry()
	c := toolclient.New(b.server.URL, reg, toolclient.WithHTTPClient(b.server.Client()))

	n, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"find_articles_by_entity", "get_top_mentioned_entities", "get_paginated_articles_with_entities"}, reg.Names())
	d, ok := reg.Get("get_paginated_articles_with_entities")
	require.True(t, ok)
	assert.Equal(t, tools.DefaultDescription, d.Description)
	fp := reg.Fingerprint()

	t.Run("nested", func(t *testing.T) {
		b.tools = `{"tools":{"tools":[{"name":"flexible_recent_articles","description":"Recent"}]}}`
		n, err := c.Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, []string{"flexible_recent_articles"}, reg.Names())
		assert.NotEqual(t, fp, reg.Fingerprint())
	})
	t.Run("invalid keeps registry", func(t *testing.T) {
		for _, body := range []string{`{"items":[]}`, `{"tools":"x"}`, `not json`} {
			b.tools = body
			_, err := c.Refresh(context.Background())
			assert.Error(t, err, body)
			assert.Equal(t, []string{"flexible_recent_articles"}, reg.Names())
		}
	})
}

func TestParseToolList(t *testing.T) {
	list, err := toolclient.ParseToolList([]byte(toolsList))
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "integer", list[0].ParamType("limit"))

	_, err = toolclient.ParseToolList([]byte(`{"tools":{"other":[]}}`))
	assert.EqualError(t, err, "invalid tools response: unexpected tools type JSON")
	_, err = toolclient.ParseToolList([]byte(`[]`))
	assert.EqualError(t, err, "invalid tools response: no tools field")
}

func TestExecute_InvalidInput(t *testing.T) {
	b := newBackend(t)
	c := newClient(t, b)
	before := b.hits.Load()

	tcases := []struct {
		name any
		args any
	}{
		{nil, map[string]any{}},
		{"", map[string]any{}},
		{"undefined", map[string]any{}},
		{42, map[string]any{}},
		{"find_articles_by_entity", nil},
		{"find_articles_by_entity", "limit=10"},
		{"find_articles_by_entity", []any{1}},
	}
	for _, tc := range tcases {
		res := c.Execute(context.Background(), tc.name, tc.args)
		assert.False(t, res.Success)
		assert.True(t, errors.Is(res.Err, toolclient.ErrInvalidInput), "%v %v", tc.name, tc.args)
		assert.NotEmpty(t, res.Error)
	}
	assert.Equal(t, before, b.hits.Load())

	res := c.Execute(context.Background(), nil, map[string]any{})
	assert.Equal(t, "Invalid tool name: 'None'. Tool name cannot be None, undefined, empty, or non-string.", res.Error)
	assert.Equal(t, "None", res.ToolName)
}

func TestExecute_NotFound(t *testing.T) {
	b := newBackend(t)
	c := newClient(t, b)
	before := b.hits.Load()

	res := c.Execute(context.Background(), "get_weather_forecast", map[string]any{})
	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Err, toolclient.ErrToolNotFound))
	assert.Len(t, res.AvailableTools, 3)
	assert.LessOrEqual(t, len(res.Suggestions), 3)
	assert.Contains(t, res.Error, "Tool 'get_weather_forecast' not found.")
	assert.Equal(t, before, b.hits.Load())
}

func TestExecute(t *testing.T) {
	b := newBackend(t)
	c := newClient(t, b)

	res := c.Execute(context.Background(), "FIND-ARTICLES-BY-ENTITY", map[string]any{"entityName": "Tesla", "limit": "10"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "find_articles_by_entity", res.ToolName)
	assert.Equal(t, "FIND-ARTICLES-BY-ENTITY", res.OriginalToolName)
	assert.Equal(t, b.server.URL+"/tools/call", res.EndpointUsed)
	assert.Empty(t, res.Method)
	assert.Equal(t, map[string]any{"articles": []any{map[string]any{"title": "one"}}}, res.Result)

	body := b.body()
	assert.Equal(t, "find_articles_by_entity", body.Get("name").String())
	assert.Equal(t, `10`, body.Get("arguments.limit").Raw)
	assert.True(t, body.Get("id").Exists())
	assert.Equal(t, int32(1), b.calls.Load())
}

func TestExecute_CoercesStringArguments(t *testing.T) {
	b := newBackend(t)
	c := newClient(t, b)

	res := c.Execute(context.Background(), "get_top_mentioned_entities", map[string]any{"limit": "10", "includeCounts": "yes"})
	require.True(t, res.Success)
	assert.JSONEq(t, `{"limit":10,"includeCounts":true}`, b.body().Get("arguments").Raw)
}

func TestExecute_ResponseShapes(t *testing.T) {
	b := newBackend(t)
	c := newClient(t, b)

	b.callBody = `{"error":{"code":-32000,"message":"boom"}}`
	res := c.Execute(context.Background(), "get_top_mentioned_entities", map[string]any{"limit": 5})
	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Err, toolclient.ErrToolFailed))
	assert.Equal(t, `JSON-RPC error: {"code":-32000,"message":"boom"}`, res.Error)

	b.callBody = `{"articles":["a"]}`
	res = c.Execute(context.Background(), "get_top_mentioned_entities", map[string]any{"limit": 5})
	assert.True(t, res.Success)
	assert.Equal(t, map[string]any{"articles": []any{"a"}}, res.Result)

	b.callBody = `plain text answer`
	res = c.Execute(context.Background(), "get_top_mentioned_entities", map[string]any{"limit": 5})
	assert.True(t, res.Success)
	assert.Equal(t, "plain text answer", res.Result)
}

func TestExecute_Fallback(t *testing.T) {
	t.Run("primary fails once", func(t *testing.T) {
		b := newBackend(t)
		b.callCodes = []int{http.StatusInternalServerError}
		c := newClient(t, b)

		res := c.Execute(context.Background(), "find_articles_by_entity", map[string]any{"entityName": "Tesla"})
		require.True(t, res.Success, res.Error)
		assert.Equal(t, toolclient.MethodFallback, res.Method)
		assert.Equal(t, int32(2), b.calls.Load())
		// fallback body is the simple shape, result is passed through
		assert.False(t, b.body().Get("id").Exists())
		assert.Equal(t, map[string]any{"result": map[string]any{"articles": []any{map[string]any{"title": "one"}}}}, res.Result)
	})
	t.Run("both fail", func(t *testing.T) {
		b := newBackend(t)
		b.callCodes = []int{http.StatusInternalServerError, http.StatusBadGateway}
		c := newClient(t, b)

		res := c.Execute(context.Background(), "find_articles_by_entity", map[string]any{"entityName": "Tesla"})
		assert.False(t, res.Success)
		assert.Equal(t, toolclient.MethodFallback, res.Method)
		assert.Equal(t, http.StatusBadGateway, res.StatusCode)
		assert.Equal(t, "backend failure", res.ResponseText)
		assert.Equal(t, "Tool execution failed: HTTP 502 - backend failure", res.Error)
		assert.True(t, errors.Is(res.Err, toolclient.ErrTransport))
		assert.Equal(t, int32(2), b.calls.Load())
	})
}

func TestExecute_ConcurrentReplace(t *testing.T) {
	b := newBackend(t)
	d := tools.NewDescriptor("get_top_mentioned_entities", "Top entities", nil)
	reg := tools.NewRegistry(d)
	c := toolclient.New(b.server.URL, reg, toolclient.WithHTTPClient(b.server.Client()))

	var stop atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for !stop.Load() {
			reg.Replace([]*tools.Descriptor{d})
			reg.Replace(nil)
		}
	}()

	for range 200 {
		res := c.Execute(context.Background(), "get_top_mentioned_entities", map[string]any{"limit": 5})
		if !res.Success {
			assert.True(t, errors.Is(res.Err, toolclient.ErrToolNotFound), res.Error)
		}
	}
	stop.Store(true)
	wg.Wait()
}
