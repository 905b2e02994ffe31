package agent

import (
	"github.com/effective-security/toolrouter/pkg/prompts"
	"github.com/effective-security/toolrouter/promptbreaker"
	"github.com/effective-security/toolrouter/store"
)

// Defaults of the conversation memory usage
const (
	DefaultConversationID = "default"
	DefaultRecallTokens   = 2000
	DefaultHistoryTurns   = 5
)

// Option is a function that can be used to modify the behavior of the Agent Config.
type Option func(*Config)

// Config of the Agent
type Config struct {
	// CallbackHandler receives the pipeline events
	CallbackHandler Callback
	// Prompts builds the system prompts
	Prompts *prompts.Builder
	// Breaker splits large prompts into chunks
	Breaker *promptbreaker.Breaker
	// Store keeps the conversations
	Store store.ConversationStore

	// MemoryEnabled enables ProcessWithMemory,
	// otherwise it behaves as Process.
	MemoryEnabled bool
	// ChainingEnabled enables the chain execution in ProcessWithChaining
	ChainingEnabled bool

	// RecallTokens is the token budget of the recalled history
	RecallTokens int
	// HistoryTurns is the number of the recalled turns added to the context
	HistoryTurns int
}

// NewConfig returns Config with defaults
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		MemoryEnabled:   true,
		ChainingEnabled: true,
		RecallTokens:    DefaultRecallTokens,
		HistoryTurns:    DefaultHistoryTurns,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.CallbackHandler == nil {
		cfg.CallbackHandler = NewNoopCallback()
	}
	if cfg.Prompts == nil {
		cfg.Prompts = prompts.New()
	}
	if cfg.Breaker == nil {
		cfg.Breaker = promptbreaker.New()
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemoryStore()
	}
	return cfg
}

// WithCallback allows setting a custom Callback Handler.
func WithCallback(callbackHandler Callback) Option {
	return func(o *Config) {
		o.CallbackHandler = callbackHandler
	}
}

// WithPrompts sets the prompt builder
func WithPrompts(b *prompts.Builder) Option {
	return func(o *Config) {
		o.Prompts = b
	}
}

// WithBreaker sets the prompt breaker
func WithBreaker(b *promptbreaker.Breaker) Option {
	return func(o *Config) {
		o.Breaker = b
	}
}

// WithStore sets the conversation store
func WithStore(s store.ConversationStore) Option {
	return func(o *Config) {
		o.Store = s
	}
}

// WithFeatures enables or disables the memory and the chaining
func WithFeatures(memory, chaining bool) Option {
	return func(o *Config) {
		o.MemoryEnabled = memory
		o.ChainingEnabled = chaining
	}
}

// WithRecall sets the number of recalled turns and their token budget,
// non-positive values keep the defaults.
func WithRecall(turns, tokens int) Option {
	return func(o *Config) {
		if turns > 0 {
			o.HistoryTurns = turns
		}
		if tokens > 0 {
			o.RecallTokens = tokens
		}
	}
}
