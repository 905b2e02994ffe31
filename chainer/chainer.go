package chainer

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/effective-security/toolrouter/generation"
	"github.com/effective-security/toolrouter/pkg/metricskey"
	"github.com/effective-security/toolrouter/pkg/prompts"
	"github.com/effective-security/toolrouter/selector"
	"github.com/effective-security/toolrouter/toolcall"
	"github.com/effective-security/toolrouter/toolclient"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter", "chainer")

// MethodPromptChaining is the Method of the chain Result
const MethodPromptChaining = "prompt_chaining"

// ToolExecutor executes tools
type ToolExecutor interface {
	Execute(ctx context.Context, name any, args any) *toolclient.Result
}

// StepResult is the outcome of a chain step
type StepResult struct {
	StepID     int                `json:"step_id"`
	StepType   string             `json:"step_type"`
	Response   string             `json:"response"`
	ToolUsed   string             `json:"tool_used,omitempty"`
	ToolResult *toolclient.Result `json:"tool_result,omitempty"`
	Error      string             `json:"error,omitempty"`
	Success    bool               `json:"success"`
}

// Result is the outcome of the chain
type Result struct {
	Response           string        `json:"response"`
	ChainStepsExecuted int           `json:"chain_steps_executed"`
	SuccessfulSteps    int           `json:"successful_steps"`
	ChainResults       []*StepResult `json:"chain_results"`
	Success            bool          `json:"success"`
	Error              string        `json:"error,omitempty"`
	Method             string        `json:"method"`
}

// Option is a function that modifies the Chainer.
type Option func(*Chainer)

// WithPrompts sets the prompt builder
func WithPrompts(b *prompts.Builder) Option {
	return func(c *Chainer) {
		c.prompts = b
	}
}

// Chainer executes chain steps
type Chainer struct {
	gen     generation.Generator
	tools   ToolExecutor
	prompts *prompts.Builder
}

// New returns Chainer
func New(gen generation.Generator, tools ToolExecutor, opts ...Option) *Chainer {
	c := &Chainer{
		gen:   gen,
		tools: tools,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.prompts == nil {
		c.prompts = prompts.New()
	}
	return c
}

// Execute runs the steps in order.
// A failed step does not stop the chain, the synthesis uses the successful steps only.
func (c *Chainer) Execute(ctx context.Context, query string, steps []*Step, sel *selector.Result) *Result {
	started := time.Now()
	defer metricskey.PerfChainRun.MeasureSince(started, strconv.Itoa(len(steps)))

	var results []*StepResult
	var accumulated strings.Builder

	for _, step := range steps {
		logger.ContextKV(ctx, xlog.INFO,
			"status", "executing_step",
			"step", step.ID,
			"type", step.Type,
		)

		res := c.executeStep(ctx, query, step, accumulated.String(), sel)
		results = append(results, res)

		if res.Success {
			metricskey.StatsChainStepsSucceeded.IncrCounter(1, step.Type)
			accumulated.WriteString("\n\nStep " + strconv.Itoa(step.ID) + " Result:\n" + res.Response)
		} else {
			metricskey.StatsChainStepsFailed.IncrCounter(1, step.Type)
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "step_failed",
				"step", step.ID,
				"type", step.Type,
				"err", res.Error,
			)
		}
	}

	return c.synthesize(ctx, query, results)
}

func (c *Chainer) executeStep(ctx context.Context, query string, step *Step, accumulated string, sel *selector.Result) *StepResult {
	toolNames := sel.ToolNames()
	e := sel.Entities

	prompt := c.prompts.ChainStep(&prompts.Step{
		ID:          step.ID,
		Type:        step.Type,
		Description: step.Description,
		Query:       query,
		Context:     accumulated,
		Tools:       toolNames,
		SearchTerms: e.SearchTerms,
		Categories:  e.Categories,
		Authors:     e.Authors,
		Dates:       e.Dates,
		Locations:   e.Locations,
	})
	system := c.prompts.ChainStepSystem(step.Type, step.Description, toolNames)

	res := &StepResult{
		StepID:   step.ID,
		StepType: step.Type,
	}

	response, err := c.gen.Generate(ctx, prompt, system)
	if err != nil {
		res.Error = err.Error()
		res.Response = "Generation failed: " + res.Error
		return res
	}

	trimmed := strings.TrimSpace(response)
	if strings.HasPrefix(trimmed, "{") {
		if name, args, ok := toolcall.Invocation(toolcall.Parse(trimmed)); ok {
			return c.executeTool(ctx, step, name, args, res)
		}
	}

	res.Response = response
	res.Success = true
	return res
}

func (c *Chainer) executeTool(ctx context.Context, step *Step, name string, args map[string]any, res *StepResult) *StepResult {
	tr := c.tools.Execute(ctx, name, args)
	if !tr.Success {
		res.Error = tr.Error
		res.Response = "Tool execution failed: " + tr.Error
		return res
	}

	analysis, err := c.gen.Generate(ctx, c.prompts.StepAnalysis(step.ID, name, tr.Result, step.Description), "")
	if err != nil {
		res.Error = err.Error()
		res.Response = "Generation failed: " + res.Error
		return res
	}

	res.Response = analysis
	res.ToolUsed = name
	res.ToolResult = tr
	res.Success = true
	return res
}

func (c *Chainer) synthesize(ctx context.Context, query string, results []*StepResult) *Result {
	var outputs []prompts.StepOutput
	for _, r := range results {
		if r.Success {
			outputs = append(outputs, prompts.StepOutput{
				ID:       r.StepID,
				Type:     r.StepType,
				Response: r.Response,
			})
		}
	}

	res := &Result{
		ChainStepsExecuted: len(results),
		SuccessfulSteps:    len(outputs),
		ChainResults:       results,
		Method:             MethodPromptChaining,
	}

	response, err := c.gen.Generate(ctx, c.prompts.Synthesis(query, outputs), "")
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"status", "synthesis_failed",
			"err", err.Error(),
		)
		res.Error = err.Error()
		res.Response = "Error generating response: " + res.Error
		return res
	}

	res.Response = response
	res.Success = true
	return res
}
