package prompts

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/effective-security/toolrouter/pkg/llmutils"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolrouter", "prompts")

// NoToolsAvailable is rendered when the tool list is empty
const NoToolsAvailable = "No tools available"

const (
	tplToolSystem = `You are an intelligent News AI assistant.

{{ .Context }}

` + toolFormatInstructions + `

{{ if .AltHints }}` + altParameterHints + `{{ else }}` + parameterMappingHints + `{{ end }}

{{ .Categories }}

` + criticalJSONRules + `

` + responseFormatRules

	tplConversational = `You are an intelligent News AI assistant.

{{ .Context }}

INSTRUCTIONS:
- Respond conversationally and helpfully
- Provide informative responses based on your knowledge
- If the user is asking for specific current data, explain what information you would need access to`

	tplChunkTools = `You are processing part {{ .Part }} of {{ .Total }} of a larger query.

{{ .Context }}

` + toolFormatInstructions + `
` + chainStepAdditions + `

` + altParameterHints + `

{{ .Categories }}

` + multiChunkAdditions

	tplChunkConversational = `You are processing part {{ .Part }} of {{ .Total }} of a larger query.
{{ .Context }}

INSTRUCTIONS:
- Process this chunk conversationally
- Maintain context across chunks
- If this is the final chunk, provide a comprehensive response`

	tplChainStepSystem = `You are executing a chain step.

STEP TYPE: {{ .Type }}
STEP DESCRIPTION: {{ .Description }}

` + toolFormatInstructions + `
` + chainStepAdditions + `
` + chainStepInstructions + `

` + chainParameterHints + `

{{ .Categories }}

Remember: Only use tools when they're specifically needed for the user's request. The tools above are pre-selected as most relevant for this query.`

	tplChainStep = `CHAIN STEP {{ .ID }}: {{ .Description }}

ORIGINAL USER QUERY: {{ .Query }}

STEP OBJECTIVE: {{ .Description }}

{{ .Context }}

INSTRUCTIONS FOR THIS STEP:
` + toolFormatInstructions + `
1. Focus specifically on: {{ .Description }}
2. Use the most appropriate tool for this step, with appropriate parameters, interpret English like recent to numerical values like dates.
3. If this is a data collection step, gather comprehensive information
4. If this is an analysis step, provide detailed insights
5. If this is a synthesis step, create a comprehensive final response

STEP TYPE: {{ .Type }}

AVAILABLE ENTITIES:
- Search Terms: {{ pylist .SearchTerms }}
- Categories: {{ pylist .Categories }}
- Authors: {{ pylist .Authors }}
- Dates: {{ pylist .Dates }}
- Locations: {{ pylist .Locations }}

OUTPUT REQUIREMENTS:
- If tool is needed: Respond with JSON format for tool usage, again use appropriate parameters in that don't skip to use any parameter, even if you are searching like recent it should be used in dates related parameters with current date that is {{ .CurrentDate }}.
- If analysis is needed: Provide structured analysis
- If synthesis is needed: Create comprehensive final response

Focus on this specific step while keeping the overall objective in mind.`

	tplStepAnalysis = `Step {{ .ID }} completed using tool '{{ .Tool }}'.

Tool Result:
{{ .Result | toPrettyJson }}

Step Objective: {{ .Objective }}

Please provide a focused analysis of this data for step {{ .ID }}.
- Summarize key findings relevant to this step
- Highlight important patterns or insights
- Prepare this information for use in subsequent steps
- Keep the analysis focused on this step's specific objective`

	tplSynthesis = `You have completed a multi-step analysis chain. Please synthesize all findings into a comprehensive, well-structured response.

ORIGINAL QUERY: {{ .Query }}

CHAIN EXECUTION RESULTS:
{{ repeat 50 "=" }}
{{ range .Steps }}
STEP {{ .ID }} ({{ .Type }}):
{{ .Response }}
{{ repeat 30 "-" }}
{{ end }}

SYNTHESIS INSTRUCTIONS:
1. Create a comprehensive response that addresses the original query
2. Integrate insights from all successful steps
3. Organize information logically with clear structure
4. Highlight key findings and patterns
5. Provide actionable insights where appropriate
6. Use formatting (headers, lists, etc.) for better readability

RESPONSE REQUIREMENTS:
- Be comprehensive but concise
- Address the original query directly
- Show how different pieces of information connect
- Provide a satisfying conclusion

Create a response that demonstrates the value of the multi-step analysis.`

	tplFinalAnswer = `The user asked: {{ .Query }}

I executed the tool '{{ .Tool }}' and got this result:
{{ .Result | toPrettyJson }}

Please provide a clear, helpful, and well-formatted response based on this tool result.
- If the response is empty or doesn't contain required information, say so
- Summarize the key information
- Present data in a readable format
- Answer the user's question directly
- Be conversational and helpful`
)

var templates = template.Must(parse(map[string]string{
	"tool_system":          tplToolSystem,
	"conversational":       tplConversational,
	"chunk_tools":          tplChunkTools,
	"chunk_conversational": tplChunkConversational,
	"chain_step_system":    tplChainStepSystem,
	"chain_step":           tplChainStep,
	"step_analysis":        tplStepAnalysis,
	"synthesis":            tplSynthesis,
	"final_answer":         tplFinalAnswer,
}))

func parse(list map[string]string) (*template.Template, error) {
	funcs := sprig.TxtFuncMap()
	funcs["pylist"] = llmutils.FormatList

	root := template.New("prompts").Funcs(funcs)
	for name, text := range list {
		if _, err := root.New(name).Parse(text); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// Option is a function that modifies the Builder.
type Option func(*Builder)

// WithCategoriesContext sets the description of the dataset categories,
// empty value omits the block
func WithCategoriesContext(text string) Option {
	return func(b *Builder) {
		b.categories = text
	}
}

// WithCurrentDate sets the date relative dates are interpreted against
func WithCurrentDate(date string) Option {
	return func(b *Builder) {
		if date != "" {
			b.currentDate = date
		}
	}
}

// WithAltHints selects the generic parameter hints for the tool system prompt
func WithAltHints(alt bool) Option {
	return func(b *Builder) {
		b.altHints = alt
	}
}

// Builder renders the prompts
type Builder struct {
	categories  string
	currentDate string
	altHints    bool
}

// New returns Builder
func New(opts ...Option) *Builder {
	b := &Builder{
		categories:  DefaultCategoriesContext,
		currentDate: DefaultCurrentDate,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CurrentDate returns the date used in chain steps
func (b *Builder) CurrentDate() string {
	return b.currentDate
}

// ToolSystem returns the system prompt that instructs the model to call tools
func (b *Builder) ToolSystem(context string, tools []string) string {
	return render("tool_system", map[string]any{
		"Context":    context,
		"Tools":      toolsInfo(tools),
		"AltHints":   b.altHints,
		"Categories": b.categories,
	})
}

// Conversational returns the system prompt for an answer without tools
func (b *Builder) Conversational(context string) string {
	return render("conversational", map[string]any{
		"Context": context,
	})
}

// Chunk returns the system prompt of the chunk, part is 1-based
func (b *Builder) Chunk(part, total int, context string, tools []string, withTools bool) string {
	name := "chunk_conversational"
	if withTools {
		name = "chunk_tools"
	}
	return render(name, map[string]any{
		"Part":       part,
		"Total":      total,
		"Context":    context,
		"Tools":      toolsInfo(tools),
		"Categories": b.categories,
	})
}

// ChainStepSystem returns the system prompt of a chain step
func (b *Builder) ChainStepSystem(stepType, description string, tools []string) string {
	return render("chain_step_system", map[string]any{
		"Type":        stepType,
		"Description": description,
		"Tools":       toolsInfo(tools),
		"Categories":  b.categories,
	})
}

// Step describes a chain step prompt
type Step struct {
	ID          int
	Type        string
	Description string
	Query       string
	// Context is the output of the previous steps
	Context     string
	Tools       []string
	SearchTerms []string
	Categories  []string
	Authors     []string
	Dates       []string
	Locations   []string
}

// ChainStep returns the prompt of a chain step
func (b *Builder) ChainStep(s *Step) string {
	return render("chain_step", map[string]any{
		"ID":          s.ID,
		"Type":        s.Type,
		"Description": s.Description,
		"Query":       s.Query,
		"Context":     s.Context,
		"Tools":       toolsInfo(s.Tools),
		"SearchTerms": s.SearchTerms,
		"Categories":  s.Categories,
		"Authors":     s.Authors,
		"Dates":       s.Dates,
		"Locations":   s.Locations,
		"CurrentDate": b.currentDate,
	})
}

// StepAnalysis returns the prompt that analyzes the tool result of a chain step
func (b *Builder) StepAnalysis(id int, tool string, result any, objective string) string {
	return render("step_analysis", map[string]any{
		"ID":        id,
		"Tool":      tool,
		"Result":    result,
		"Objective": objective,
	})
}

// StepOutput is the output of a successful chain step
type StepOutput struct {
	ID       int
	Type     string
	Response string
}

// Synthesis returns the prompt that combines the chain step outputs
func (b *Builder) Synthesis(query string, steps []StepOutput) string {
	return render("synthesis", map[string]any{
		"Query": query,
		"Steps": steps,
	})
}

// FinalAnswer returns the prompt that turns the tool result into the answer
func (b *Builder) FinalAnswer(query, tool string, result any) string {
	return render("final_answer", map[string]any{
		"Query":  query,
		"Tool":   tool,
		"Result": result,
	})
}

func toolsInfo(tools []string) string {
	if len(tools) == 0 {
		return NoToolsAvailable
	}
	return strings.Join(tools, ", ")
}

func render(name string, data any) string {
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		logger.KV(xlog.ERROR,
			"status", "render_failed",
			"template", name,
			"err", err.Error(),
		)
	}
	return b.String()
}
