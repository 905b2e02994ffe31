package toolclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/pkg/metricskey"
	"github.com/effective-security/toolrouter/pkg/schema"
	"github.com/effective-security/toolrouter/tools"
	"github.com/effective-security/xlog"
	"github.com/tidwall/gjson"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter", "toolclient")

// Default timeouts of the tool backend calls
const (
	DefaultHealthTimeout = 5 * time.Second
	DefaultListTimeout   = 10 * time.Second
	DefaultCallTimeout   = 1200 * time.Second
)

// Option is a function that modifies the client Config.
type Option func(*Config)

// Config of the tool client
type Config struct {
	HTTPClient    *http.Client
	HealthTimeout time.Duration
	ListTimeout   time.Duration
	CallTimeout   time.Duration
}

// WithHTTPClient sets the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithTimeouts overrides non-zero timeouts
func WithTimeouts(health, list, call time.Duration) Option {
	return func(c *Config) {
		if health > 0 {
			c.HealthTimeout = health
		}
		if list > 0 {
			c.ListTimeout = list
		}
		if call > 0 {
			c.CallTimeout = call
		}
	}
}

// Client calls the tool backend
type Client struct {
	baseURL   string
	registry  *tools.Registry
	cfg       Config
	requestID atomic.Int64
}

// New returns Client for the tool backend at baseURL,
// tools are resolved against and loaded into the registry.
func New(baseURL string, registry *tools.Registry, opts ...Option) *Client {
	cfg := Config{
		HTTPClient:    http.DefaultClient,
		HealthTimeout: DefaultHealthTimeout,
		ListTimeout:   DefaultListTimeout,
		CallTimeout:   DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		registry: registry,
		cfg:      cfg,
	}
}

// BaseURL returns the tool backend URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Registry returns the tool registry
func (c *Client) Registry() *tools.Registry {
	return c.registry
}

// Health checks the tool backend
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout)
	defer cancel()

	status, _, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return errors.Mark(errors.Newf("tool backend health check returned status %d", status), ErrTransport)
	}
	return nil
}

// Refresh loads tools from the backend and atomically replaces the registry content.
// Both {"tools":[...]} and {"tools":{"tools":[...]}} responses are accepted.
// The registry is not changed on failure.
func (c *Client) Refresh(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ListTimeout)
	defer cancel()

	status, body, err := c.do(ctx, http.MethodGet, "/tools", nil)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, errors.Mark(errors.Newf("failed to fetch tools: HTTP %d", status), ErrTransport)
	}

	list, err := ParseToolList(body)
	if err != nil {
		return 0, err
	}
	c.registry.Replace(list)

	logger.KV(xlog.INFO,
		"status", "tools_loaded",
		"count", c.registry.Len(),
		"fingerprint", c.registry.Fingerprint(),
	)
	return c.registry.Len(), nil
}

// ParseToolList parses the /tools response body
func ParseToolList(body []byte) ([]*tools.Descriptor, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("invalid tools response: not JSON")
	}
	field := gjson.GetBytes(body, "tools")
	switch {
	case field.IsArray():
	case field.IsObject() && field.Get("tools").IsArray():
		field = field.Get("tools")
	case field.Exists():
		return nil, errors.Newf("invalid tools response: unexpected tools type %s", field.Type.String())
	default:
		return nil, errors.New("invalid tools response: no tools field")
	}

	var list []*tools.Descriptor
	for _, item := range field.Array() {
		name := item.Get("name")
		if !item.IsObject() || name.Type != gjson.String || name.String() == "" {
			continue
		}
		input := item.Get("inputSchema")
		s, err := schema.FromJSON([]byte(input.Raw))
		if err != nil {
			logger.KV(xlog.WARNING,
				"status", "invalid_schema",
				"tool", name.String(),
				"err", err.Error(),
			)
			s = nil
		}
		list = append(list, tools.NewDescriptor(name.String(), item.Get("description").String(), s))
	}
	return list, nil
}

// Execute calls the tool.
// The name must be a non-empty string other than "undefined" and args must be a map,
// otherwise ErrInvalidInput is returned without a network call.
// When the primary call fails with a non-200 status or transport error,
// the call is retried once with the simple request body.
func (c *Client) Execute(ctx context.Context, name any, args any) *Result {
	toolName, arguments, err := validateInput(name, args)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "invalid_input",
			"err", err.Error(),
		)
		return failure(err, toolName)
	}

	actual, ok := c.Resolve(toolName)
	if !ok {
		return c.notFound(toolName)
	}
	if actual != toolName {
		logger.ContextKV(ctx, xlog.INFO,
			"status", "tool_name_corrected",
			"requested", toolName,
			"resolved", actual,
		)
	}

	started := time.Now()
	defer metricskey.PerfToolCall.MeasureSince(started, actual)

	// the registry may have been refreshed since Resolve
	d, ok := c.registry.Get(actual)
	if !ok {
		return c.notFound(toolName)
	}
	converted := CoerceArguments(arguments, d.InputSchema)

	res := c.call(ctx, actual, toolName, converted)
	if res.Success {
		metricskey.StatsToolCallsSucceeded.IncrCounter(1, actual)
	} else {
		metricskey.StatsToolCallsFailed.IncrCounter(1, actual)
	}
	return res
}

func (c *Client) notFound(toolName string) *Result {
	suggestions := c.Suggest(toolName)
	available := c.registry.Names()
	msg := "Tool '" + toolName + "' not found."
	if len(suggestions) > 0 {
		msg += " Did you mean: " + strings.Join(suggestions, ", ") + "?"
	}
	msg += " Available tools: [" + strings.Join(available, ", ") + "]"

	metricskey.StatsToolCallsNotFound.IncrCounter(1, toolName)
	return &Result{
		Success:        false,
		Error:          msg,
		ToolName:       toolName,
		Suggestions:    suggestions,
		AvailableTools: available,
		Err:            errors.Mark(errors.New(msg), ErrToolNotFound),
	}
}

type callRequest struct {
	ID        int64          `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (c *Client) call(ctx context.Context, name, original string, args map[string]any) *Result {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	endpoint := c.baseURL + "/tools/call"
	req := &callRequest{
		ID:        c.requestID.Add(1),
		Name:      name,
		Arguments: args,
	}

	status, body, err := c.do(callCtx, http.MethodPost, "/tools/call", req)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "call_failed",
			"tool", name,
			"err", err.Error(),
		)
		return c.fallback(ctx, name, original, args)
	}
	if status != http.StatusOK {
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "call_failed",
			"tool", name,
			"code", status,
		)
		return c.fallback(ctx, name, original, args)
	}

	res := &Result{
		ToolName:         name,
		OriginalToolName: original,
		EndpointUsed:     endpoint,
	}
	if !gjson.ValidBytes(body) {
		res.Success = true
		res.Result = string(body)
		return res
	}

	parsed := gjson.ParseBytes(body)
	if parsed.IsObject() {
		if r := parsed.Get("result"); r.Exists() {
			res.Success = true
			res.Result = r.Value()
			return res
		}
		if e := parsed.Get("error"); e.Exists() {
			msg := "JSON-RPC error: " + e.String()
			logger.ContextKV(ctx, xlog.ERROR,
				"status", "tool_error",
				"tool", name,
				"err", msg,
			)
			return &Result{
				Success:  false,
				Error:    msg,
				ToolName: name,
				Err:      errors.Mark(errors.New(msg), ErrToolFailed),
			}
		}
	}
	res.Success = true
	res.Result = parsed.Value()
	return res
}

// fallback calls the tool with the simple {name, arguments} body
func (c *Client) fallback(ctx context.Context, name, original string, args map[string]any) *Result {
	metricskey.StatsToolCallsFallback.IncrCounter(1, name)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	endpoint := c.baseURL + "/tools/call"
	req := &callRequest{
		Name:      name,
		Arguments: args,
	}

	status, body, err := c.do(ctx, http.MethodPost, "/tools/call", req)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "fallback_failed",
			"tool", name,
			"err", err.Error(),
		)
		res := failure(err, name)
		res.Method = MethodFallback
		return res
	}
	if status != http.StatusOK {
		text := string(body)
		err = errors.Mark(errors.Newf("Tool execution failed: HTTP %d - %s", status, text), ErrTransport)
		res := failure(err, name)
		res.Method = MethodFallback
		res.StatusCode = status
		res.ResponseText = text
		return res
	}

	res := &Result{
		Success:          true,
		ToolName:         name,
		OriginalToolName: original,
		EndpointUsed:     endpoint,
		Method:           MethodFallback,
	}
	if gjson.ValidBytes(body) {
		res.Result = gjson.ParseBytes(body).Value()
	} else {
		res.Result = string(body)
	}
	return res
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		js, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, errors.Wrap(err, "failed to marshal request")
		}
		reader = bytes.NewReader(js)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to create request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, errors.Mark(errors.Wrapf(err, "%s %s", method, path), ErrTransport)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, errors.Mark(errors.Wrap(err, "failed to read response"), ErrTransport)
	}
	return resp.StatusCode, body, nil
}

func validateInput(name any, args any) (string, map[string]any, error) {
	toolName, ok := name.(string)
	if !ok || toolName == "" || toolName == "undefined" {
		label := "None"
		if name != nil {
			label = fmt.Sprint(name)
		}
		return label, nil, errors.Mark(
			errors.Newf("Invalid tool name: '%s'. Tool name cannot be None, undefined, empty, or non-string.", label),
			ErrInvalidInput)
	}
	arguments, ok := args.(map[string]any)
	if !ok {
		return toolName, nil, errors.Mark(
			errors.Newf("Invalid arguments type: %T. Must be a dictionary.", args),
			ErrInvalidInput)
	}
	if arguments == nil {
		arguments = map[string]any{}
	}
	return toolName, arguments, nil
}
