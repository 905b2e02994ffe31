package agent

import (
	"context"
	"sync"

	"github.com/effective-security/toolrouter/chainer"
	"github.com/effective-security/toolrouter/generation"
	"github.com/effective-security/toolrouter/selector"
	"github.com/effective-security/toolrouter/store"
	"github.com/effective-security/toolrouter/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter", "agent")

// Agent ties the tool selection, the generation backend and the tools together
type Agent struct {
	cfg      *Config
	gen      generation.Backend
	tools    ToolInvoker
	selector *selector.Selector
	chainer  *chainer.Chainer

	lock   sync.RWMutex
	status Status
}

// New returns Agent.
// The selector must score the registry of the tool invoker.
func New(gen generation.Backend, invoker ToolInvoker, sel *selector.Selector, opts ...Option) *Agent {
	cfg := NewConfig(opts...)
	return &Agent{
		cfg:      cfg,
		gen:      gen,
		tools:    invoker,
		selector: sel,
		chainer:  chainer.New(gen, invoker, chainer.WithPrompts(cfg.Prompts)),
		status: Status{
			ToolBackendURL: invoker.BaseURL(),
			GenerationURL:  gen.BaseURL(),
			Model:          gen.Model(),
		},
	}
}

// Config returns the Agent configuration
func (a *Agent) Config() *Config {
	return a.cfg
}

// Selector returns the tool selector
func (a *Agent) Selector() *selector.Selector {
	return a.selector
}

// Registry returns the tool registry
func (a *Agent) Registry() *tools.Registry {
	return a.tools.Registry()
}

// Store returns the conversation store
func (a *Agent) Store() store.ConversationStore {
	return a.cfg.Store
}

// Initialized returns true if both backends are connected
func (a *Agent) Initialized() bool {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return a.status.Initialized
}

// Initialize connects the tool backend and the generation backend,
// and loads the tools.
func (a *Agent) Initialize(ctx context.Context) bool {
	st := Status{
		ToolBackendURL: a.tools.BaseURL(),
		GenerationURL:  a.gen.BaseURL(),
	}

	if err := a.tools.Health(ctx); err != nil {
		st.LastToolError = err.Error()
	} else {
		st.ToolBackend = true
		if _, err := a.tools.Refresh(ctx); err != nil {
			st.LastToolError = err.Error()
		}
	}

	if err := a.gen.Connect(ctx); err != nil {
		st.LastGenerationError = err.Error()
	} else {
		st.Generation = true
	}

	reg := a.tools.Registry()
	st.Tools = reg.Len()
	st.RegistryFingerprint = reg.Fingerprint()
	st.Model = a.gen.Model()
	st.Initialized = st.ToolBackend && st.Generation

	a.lock.Lock()
	a.status = st
	a.lock.Unlock()

	if st.Initialized {
		logger.ContextKV(ctx, xlog.INFO,
			"status", "initialized",
			"tools", st.Tools,
			"model", st.Model,
		)
	} else {
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "initialize_failed",
			"tool_backend", st.ToolBackend,
			"tool_backend_url", st.ToolBackendURL,
			"tool_err", st.LastToolError,
			"generation", st.Generation,
			"generation_url", st.GenerationURL,
			"generation_err", st.LastGenerationError,
		)
	}
	return st.Initialized
}

// RefreshTools reloads the tools from the tool backend
func (a *Agent) RefreshTools(ctx context.Context) ([]string, error) {
	_, err := a.tools.Refresh(ctx)

	reg := a.tools.Registry()
	a.lock.Lock()
	defer a.lock.Unlock()
	if err != nil {
		a.status.LastToolError = err.Error()
		return nil, err
	}
	a.status.Tools = reg.Len()
	a.status.RegistryFingerprint = reg.Fingerprint()
	return reg.Names(), nil
}

// Status returns a copy of the Agent status
func (a *Agent) Status() *Status {
	a.lock.RLock()
	defer a.lock.RUnlock()
	st := a.status
	st.Model = a.gen.Model()
	return &st
}

// Probe checks the tool backend health and returns the state of both backends
func (a *Agent) Probe(ctx context.Context) (toolBackend bool, generation bool) {
	err := a.tools.Health(ctx)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_backend_unhealthy",
			"err", err.Error(),
		)
	}
	return err == nil, a.gen.Available()
}

// Analysis is the tool selection of a query
type Analysis struct {
	Query     string            `json:"query"`
	Selection *selector.Result  `json:"selection"`
	Context   string            `json:"optimized_context"`
	Chain     *chainer.Analysis `json:"chain_analysis"`
}

// Analyze returns the tool selection and the chain requirements of the query
// without calling the backends.
func (a *Agent) Analyze(query string) *Analysis {
	sel := a.selector.Select(query)
	return &Analysis{
		Query:     query,
		Selection: sel,
		Context:   selector.BuildContext(sel),
		Chain:     chainer.Analyze(query, sel.Entities),
	}
}
