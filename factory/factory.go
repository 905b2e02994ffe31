package factory

import (
	"github.com/effective-security/toolrouter/agent"
	"github.com/effective-security/toolrouter/entities"
	"github.com/effective-security/toolrouter/generation"
	"github.com/effective-security/toolrouter/pkg/prompts"
	"github.com/effective-security/toolrouter/promptbreaker"
	"github.com/effective-security/toolrouter/selector"
	"github.com/effective-security/toolrouter/store"
	"github.com/effective-security/toolrouter/toolclient"
	"github.com/effective-security/toolrouter/tools"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter", "factory")

// NewGenerator is a wrapper for CreateGenerator to allow for overriding the default implementation.
var NewGenerator = CreateGenerator

// CreateGenerator returns the Ollama generation client
func CreateGenerator(cfg *GenerationConfig) (generation.Backend, error) {
	generate, _ := duration(cfg.GenerateTimeout)
	list, _ := duration(cfg.ListTimeout)
	c, err := generation.New(cfg.URL, cfg.Model,
		generation.WithTimeouts(generate, list),
		generation.WithSampling(
			values.Select(cfg.Temperature != 0, cfg.Temperature, generation.DefaultTemperature),
			values.Select(cfg.TopP != 0, cfg.TopP, generation.DefaultTopP),
			cfg.NumPredict,
		),
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Load returns the Agent configured by the file
func Load(location string, opts ...agent.Option) (*agent.Agent, *Config, error) {
	cfg, err := LoadConfig(location)
	if err != nil {
		return nil, nil, err
	}
	a, err := New(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}

// New returns the Agent for the configuration.
// The options are applied after the configured ones.
func New(cfg *Config, opts ...agent.Option) (*agent.Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gen, err := NewGenerator(&cfg.Generation)
	if err != nil {
		return nil, err
	}

	health, _ := duration(cfg.ToolBackend.HealthTimeout)
	list, _ := duration(cfg.ToolBackend.ListTimeout)
	call, _ := duration(cfg.ToolBackend.CallTimeout)
	client := toolclient.New(
		values.StringsCoalesce(cfg.ToolBackend.URL, DefaultToolBackendURL),
		tools.NewRegistry(),
		toolclient.WithTimeouts(health, list, call),
	)

	taxonomy, err := Taxonomy(&cfg.Selector)
	if err != nil {
		return nil, err
	}
	sel := selector.New(client.Registry(), Extractor(&cfg.Extractor), selector.NewCategorizer(taxonomy))

	promptOpts := []prompts.Option{
		prompts.WithCurrentDate(cfg.Chain.CurrentDate),
		prompts.WithAltHints(cfg.Selector.AltHints),
	}
	if cfg.Selector.CategoriesContext != "" {
		promptOpts = append(promptOpts, prompts.WithCategoriesContext(cfg.Selector.CategoriesContext))
	}

	all := []agent.Option{
		agent.WithPrompts(prompts.New(promptOpts...)),
		agent.WithBreaker(promptbreaker.New(
			promptbreaker.WithMaxChunkTokens(cfg.Breaker.MaxTokens),
			promptbreaker.WithCharsPerToken(cfg.Breaker.CharsPerToken),
		)),
		agent.WithStore(store.NewMemoryStore(
			store.WithLimits(cfg.Store.MaxConversations, cfg.Store.MaxMessages),
			store.WithCharsPerToken(cfg.Breaker.CharsPerToken),
		)),
		agent.WithFeatures(cfg.Features.MemoryEnabled(), cfg.Features.ChainingEnabled()),
		agent.WithRecall(cfg.Store.HistoryTurns, cfg.Store.RecallTokens),
	}

	logger.KV(xlog.INFO,
		"status", "created",
		"tool_backend", client.BaseURL(),
		"generation", gen.BaseURL(),
		"model", gen.Model(),
		"taxonomy", taxonomy.Name,
		"memory", cfg.Features.MemoryEnabled(),
		"chaining", cfg.Features.ChainingEnabled(),
	)

	return agent.New(gen, client, sel, append(all, opts...)...), nil
}

// Taxonomy returns the taxonomy from the file, or the built-in one
func Taxonomy(cfg *SelectorConfig) (*selector.Taxonomy, error) {
	if cfg.TaxonomyFile != "" {
		return selector.LoadTaxonomy(cfg.TaxonomyFile)
	}
	return selector.BuiltinTaxonomy(cfg.Taxonomy)
}

// Extractor returns the entity extractor with the configured name recognizer
func Extractor(cfg *ExtractorConfig) entities.Extractor {
	if cfg.Names == "prose" {
		return entities.New(entities.WithNameRecognizer(entities.NewProseNames()))
	}
	return entities.New()
}
