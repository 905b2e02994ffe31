package factory

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

// DefaultToolBackendURL is the tool service address used when none is configured
const DefaultToolBackendURL = "http://localhost:5000"

// DefaultListenAddr is the HTTP listen address used when none is configured
const DefaultListenAddr = ":8000"

// Config of the service
type Config struct {
	// ToolBackend specifies the remote tool service
	ToolBackend ToolBackendConfig `json:"tool_backend" yaml:"tool_backend"`
	// Generation specifies the Ollama generation backend
	Generation GenerationConfig `json:"generation" yaml:"generation"`
	// Breaker specifies the prompt chunking budget
	Breaker BreakerConfig `json:"breaker" yaml:"breaker"`
	// Chain specifies the prompt chaining
	Chain ChainConfig `json:"chain" yaml:"chain"`
	// Selector specifies the tool taxonomy
	Selector SelectorConfig `json:"selector" yaml:"selector"`
	// Extractor specifies the entity extraction strategy
	Extractor ExtractorConfig `json:"extractor" yaml:"extractor"`
	// Features enables the memory and the chaining
	Features FeaturesConfig `json:"features" yaml:"features"`
	// Store specifies the conversation memory limits
	Store StoreConfig `json:"store" yaml:"store"`
	// Server specifies the HTTP surface
	Server ServerConfig `json:"server" yaml:"server"`
}

// ToolBackendConfig specifies the tool service
type ToolBackendConfig struct {
	URL string `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	// Timeouts are Go durations, such as 5s or 20m
	HealthTimeout string `json:"health_timeout,omitempty" yaml:"health_timeout,omitempty"`
	ListTimeout   string `json:"list_timeout,omitempty" yaml:"list_timeout,omitempty"`
	CallTimeout   string `json:"call_timeout,omitempty" yaml:"call_timeout,omitempty"`
}

// GenerationConfig specifies the generation backend
type GenerationConfig struct {
	URL             string  `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	Model           string  `json:"model,omitempty" yaml:"model,omitempty"`
	GenerateTimeout string  `json:"generate_timeout,omitempty" yaml:"generate_timeout,omitempty"`
	ListTimeout     string  `json:"list_timeout,omitempty" yaml:"list_timeout,omitempty"`
	Temperature     float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"gte=0,lte=2"`
	TopP            float64 `json:"top_p,omitempty" yaml:"top_p,omitempty" validate:"gte=0,lte=1"`
	NumPredict      int     `json:"num_predict,omitempty" yaml:"num_predict,omitempty" validate:"gte=0"`
}

// BreakerConfig specifies the prompt chunking
type BreakerConfig struct {
	MaxTokens     int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" validate:"gte=0"`
	CharsPerToken int `json:"chars_per_token,omitempty" yaml:"chars_per_token,omitempty" validate:"gte=0"`
}

// ChainConfig specifies the prompt chaining
type ChainConfig struct {
	// CurrentDate is the date relative dates are interpreted against in chain steps
	CurrentDate string `json:"current_date,omitempty" yaml:"current_date,omitempty"`
}

// SelectorConfig specifies the tool taxonomy
type SelectorConfig struct {
	// Taxonomy is the built-in taxonomy: entity|flexible
	Taxonomy string `json:"taxonomy,omitempty" yaml:"taxonomy,omitempty" validate:"omitempty,oneof=entity flexible"`
	// TaxonomyFile overrides the built-in taxonomy with YAML file
	TaxonomyFile string `json:"taxonomy_file,omitempty" yaml:"taxonomy_file,omitempty"`
	// AltHints selects the generic parameter hints in the tool system prompt
	AltHints bool `json:"alt_hints,omitempty" yaml:"alt_hints,omitempty"`
	// CategoriesContext replaces the description of the dataset categories
	CategoriesContext string `json:"categories_context,omitempty" yaml:"categories_context,omitempty"`
}

// ExtractorConfig specifies the entity extraction
type ExtractorConfig struct {
	// Names is the name recognizer: heuristic|prose
	Names string `json:"names,omitempty" yaml:"names,omitempty" validate:"omitempty,oneof=heuristic prose"`
}

// FeaturesConfig enables the pipeline features,
// nil values are enabled.
type FeaturesConfig struct {
	Memory   *bool `json:"memory,omitempty" yaml:"memory,omitempty"`
	Chaining *bool `json:"chaining,omitempty" yaml:"chaining,omitempty"`
}

// MemoryEnabled returns true if the conversation memory is enabled
func (c FeaturesConfig) MemoryEnabled() bool {
	return c.Memory == nil || *c.Memory
}

// ChainingEnabled returns true if the prompt chaining is enabled
func (c FeaturesConfig) ChainingEnabled() bool {
	return c.Chaining == nil || *c.Chaining
}

// StoreConfig specifies the conversation memory
type StoreConfig struct {
	MaxConversations int `json:"max_conversations,omitempty" yaml:"max_conversations,omitempty" validate:"gte=0"`
	MaxMessages      int `json:"max_messages,omitempty" yaml:"max_messages,omitempty" validate:"gte=0"`
	RecallTokens     int `json:"recall_tokens,omitempty" yaml:"recall_tokens,omitempty" validate:"gte=0"`
	HistoryTurns     int `json:"history_turns,omitempty" yaml:"history_turns,omitempty" validate:"gte=0"`
}

// ServerConfig specifies the HTTP surface
type ServerConfig struct {
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
}

// Validate returns error if the configuration is not valid
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	for name, d := range map[string]string{
		"tool_backend.health_timeout": c.ToolBackend.HealthTimeout,
		"tool_backend.list_timeout":   c.ToolBackend.ListTimeout,
		"tool_backend.call_timeout":   c.ToolBackend.CallTimeout,
		"generation.generate_timeout": c.Generation.GenerateTimeout,
		"generation.list_timeout":     c.Generation.ListTimeout,
	} {
		if _, err := duration(d); err != nil {
			return errors.Wrapf(err, "invalid %s", name)
		}
	}
	return nil
}

// LoadConfig from file,
// empty file name returns the default configuration.
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// duration parses the optional Go duration, empty value is zero
func duration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	if d < 0 {
		return 0, errors.Newf("negative duration: %s", s)
	}
	return d, nil
}
