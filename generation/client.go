package generation

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/pkg/metricskey"
	"github.com/effective-security/xlog"
	ollama "github.com/ollama/ollama/api"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter", "generation")

// ErrUnavailable is returned when the generation backend is not connected
var ErrUnavailable = errors.New("generation backend not available")

// Defaults of the generation client
const (
	DefaultBaseURL         = "http://localhost:11434"
	DefaultModel           = "llama3.2:latest"
	DefaultGenerateTimeout = 1800 * time.Second
	DefaultListTimeout     = 5 * time.Second

	DefaultTemperature = 0.1
	DefaultTopP        = 0.9
	DefaultNumPredict  = 2048
)

// NoResponse is returned when the backend produced an empty response
const NoResponse = "No response generated"

//go:generate mockgen -source=client.go -destination=../mocks/mockgeneration/generation_mock.gen.go -package mockgeneration

// Generator produces text for the prompt and the system prompt
type Generator interface {
	Generate(ctx context.Context, prompt, system string) (string, error)
}

// Backend is the Generator with the connection state of the backend
type Backend interface {
	Generator
	// Connect verifies the backend serves the model
	Connect(ctx context.Context) error
	// Available returns true after a successful Connect
	Available() bool
	// Model returns the model in use
	Model() string
	// BaseURL returns the backend URL
	BaseURL() string
}

var _ Backend = (*Client)(nil)

// Option is a function that modifies the client Config.
type Option func(*Config)

// Config of the generation client
type Config struct {
	HTTPClient      *http.Client
	GenerateTimeout time.Duration
	ListTimeout     time.Duration
	Temperature     float64
	TopP            float64
	NumPredict      int
}

// WithHTTPClient sets the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithTimeouts overrides non-zero timeouts
func WithTimeouts(generate, list time.Duration) Option {
	return func(c *Config) {
		if generate > 0 {
			c.GenerateTimeout = generate
		}
		if list > 0 {
			c.ListTimeout = list
		}
	}
}

// WithSampling overrides the sampling options sent with every request
func WithSampling(temperature, topP float64, numPredict int) Option {
	return func(c *Config) {
		c.Temperature = temperature
		c.TopP = topP
		if numPredict > 0 {
			c.NumPredict = numPredict
		}
	}
}

// Client is the Ollama generation client.
// The client must be connected before use.
type Client struct {
	api     *ollama.Client
	baseURL string
	cfg     Config

	lock      sync.RWMutex
	model     string
	available bool
}

// New returns Client for the Ollama backend
func New(baseURL, model string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	cfg := Config{
		HTTPClient:      http.DefaultClient,
		GenerateTimeout: DefaultGenerateTimeout,
		ListTimeout:     DefaultListTimeout,
		Temperature:     DefaultTemperature,
		TopP:            DefaultTopP,
		NumPredict:      DefaultNumPredict,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	baseURL = strings.TrimSuffix(baseURL, "/")
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid generation URL %q", baseURL)
	}

	return &Client{
		api:     ollama.NewClient(u, cfg.HTTPClient),
		baseURL: baseURL,
		cfg:     cfg,
		model:   model,
	}, nil
}

// BaseURL returns the backend URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Model returns the model in use
func (c *Client) Model() string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.model
}

// Available returns true if the backend is connected
func (c *Client) Available() bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.available
}

// Connect verifies that the model is served by the backend.
// If it is not, the first listed model is used instead.
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ListTimeout)
	defer cancel()

	c.lock.Lock()
	defer c.lock.Unlock()

	c.available = false
	list, err := c.api.List(ctx)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "connect_failed",
			"url", c.baseURL,
			"err", err.Error(),
		)
		return errors.Mark(errors.Wrap(err, "unable to list models"), ErrUnavailable)
	}

	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.Name)
	}

	for _, name := range names {
		if strings.Contains(name, c.model) {
			c.available = true
			logger.ContextKV(ctx, xlog.INFO,
				"status", "connected",
				"model", c.model,
			)
			return nil
		}
	}

	if len(names) == 0 {
		return errors.Mark(errors.Newf("model %q not found, no models available", c.model), ErrUnavailable)
	}

	switched, _, _ := strings.Cut(names[0], ":")
	logger.ContextKV(ctx, xlog.WARNING,
		"status", "model_switched",
		"model", c.model,
		"available", names,
		"using", switched,
	)
	c.model = switched
	c.available = true
	return nil
}

// Generate returns the model response for the prompt
func (c *Client) Generate(ctx context.Context, prompt, system string) (string, error) {
	c.lock.RLock()
	model, available := c.model, c.available
	c.lock.RUnlock()

	if !available {
		return "", ErrUnavailable
	}

	started := time.Now()
	defer metricskey.PerfGenerationCall.MeasureSince(started, model)
	metricskey.StatsGenerationBytesSent.IncrCounter(float64(len(prompt)+len(system)), model)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.GenerateTimeout)
	defer cancel()

	stream := false
	req := &ollama.GenerateRequest{
		Model:  model,
		Prompt: prompt,
		System: system,
		Stream: &stream,
		Options: map[string]any{
			"temperature": c.cfg.Temperature,
			"top_p":       c.cfg.TopP,
			"num_predict": c.cfg.NumPredict,
		},
	}

	var text strings.Builder
	err := c.api.Generate(ctx, req, func(gr ollama.GenerateResponse) error {
		text.WriteString(gr.Response)
		return nil
	})
	if err != nil {
		metricskey.StatsGenerationCallsFailed.IncrCounter(1, model)
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "generate_failed",
			"model", model,
			"err", err.Error(),
		)
		var se ollama.StatusError
		if errors.As(err, &se) {
			return "", errors.Newf("generation backend returned status %d", se.StatusCode)
		}
		return "", errors.Wrap(err, "generation failed")
	}

	metricskey.StatsGenerationCallsSucceeded.IncrCounter(1, model)
	metricskey.StatsGenerationBytesReceived.IncrCounter(float64(text.Len()), model)

	if text.Len() == 0 {
		return NoResponse, nil
	}
	return text.String(), nil
}
