package generation_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type backend struct {
	server   *httptest.Server
	tags     string
	response string
	status   int
	lastBody atomic.Value
}

func newBackend(t *testing.T) *backend {
	b := &backend{
		tags:     `{"models":[{"name":"mistral:7b"},{"name":"llama3.2:latest"}]}`,
		response: `{"model":"llama3.2:latest","response":"Hello there","done":true}`,
		status:   http.StatusOK,
	}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(b.tags))
		case "/api/generate":
			body, _ := io.ReadAll(r.Body)
			b.lastBody.Store(string(body))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(b.status)
			if b.status != http.StatusOK {
				_, _ = w.Write([]byte(`{"error":"model crashed"}` + "\n"))
				return
			}
			_, _ = w.Write([]byte(b.response + "\n"))
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

func TestConnect(t *testing.T) {
	b := newBackend(t)

	t.Run("model listed", func(t *testing.T) {
		c, err := generation.New(b.server.URL, "llama3.2", generation.WithHTTPClient(b.server.Client()))
		require.NoError(t, err)
		assert.False(t, c.Available())
		require.NoError(t, c.Connect(context.Background()))
		assert.True(t, c.Available())
		assert.Equal(t, "llama3.2", c.Model())
	})
	t.Run("switch to first", func(t *testing.T) {
		c, err := generation.New(b.server.URL, "phi3", generation.WithHTTPClient(b.server.Client()))
		require.NoError(t, err)
		require.NoError(t, c.Connect(context.Background()))
		assert.True(t, c.Available())
		assert.Equal(t, "mistral", c.Model())
	})
	t.Run("no models", func(t *testing.T) {
		b2 := newBackend(t)
		b2.tags = `{"models":[]}`
		c, err := generation.New(b2.server.URL, "", generation.WithHTTPClient(b2.server.Client()))
		require.NoError(t, err)
		assert.Equal(t, generation.DefaultModel, c.Model())
		err = c.Connect(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, generation.ErrUnavailable))
		assert.False(t, c.Available())
	})
	t.Run("down", func(t *testing.T) {
		c, err := generation.New("http://127.0.0.1:1", "llama3.2")
		require.NoError(t, err)
		err = c.Connect(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, generation.ErrUnavailable))
	})
}

func TestGenerate(t *testing.T) {
	b := newBackend(t)
	c, err := generation.New(b.server.URL+"/", "llama3.2", generation.WithHTTPClient(b.server.Client()))
	require.NoError(t, err)
	assert.Equal(t, b.server.URL, c.BaseURL())

	_, err = c.Generate(context.Background(), "hi", "")
	assert.True(t, errors.Is(err, generation.ErrUnavailable))

	require.NoError(t, c.Connect(context.Background()))

	text, err := c.Generate(context.Background(), "What is new?", "You are helpful")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", text)

	body := b.body()
	assert.Equal(t, "llama3.2", body.Get("model").String())
	assert.Equal(t, "What is new?", body.Get("prompt").String())
	assert.Equal(t, "You are helpful", body.Get("system").String())
	assert.Equal(t, "false", body.Get("stream").Raw)
	assert.Equal(t, 0.1, body.Get("options.temperature").Float())
	assert.Equal(t, 0.9, body.Get("options.top_p").Float())
	assert.Equal(t, int64(2048), body.Get("options.num_predict").Int())

	t.Run("empty response", func(t *testing.T) {
		b.response = `{"model":"llama3.2","done":true}`
		text, err := c.Generate(context.Background(), "x", "")
		require.NoError(t, err)
		assert.Equal(t, generation.NoResponse, text)
	})
	t.Run("backend error", func(t *testing.T) {
		b.status = http.StatusInternalServerError
		_, err := c.Generate(context.Background(), "x", "")
		assert.EqualError(t, err, "generation backend returned status 500")
	})
}

func TestWithSampling(t *testing.T) {
	b := newBackend(t)
	c, err := generation.New(b.server.URL, "llama3.2",
		generation.WithHTTPClient(b.server.Client()),
		generation.WithSampling(0.5, 0.7, 512),
		generation.WithTimeouts(0, 0),
	)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))

	_, err = c.Generate(context.Background(), "x", "")
	require.NoError(t, err)

	var req struct {
		Options map[string]any `json:"options"`
	}
	require.NoError(t, json.Unmarshal([]byte(b.body().Raw), &req))
	assert.Equal(t, map[string]any{"temperature": 0.5, "top_p": 0.7, "num_predict": float64(512)}, req.Options)
}
