package selector

import (
	"strconv"
	"strings"

	"github.com/effective-security/toolrouter/pkg/llmutils"
	"github.com/effective-security/toolrouter/pkg/schema"
)

// MaxOptionalParams bounds the optional parameters listed per tool
const MaxOptionalParams = 5

// BuildContext renders the selection as the tool context of the generation prompt.
// The layout is stable: prompts and model behavior depend on it.
func BuildContext(r *Result) string {
	var b strings.Builder
	e := r.Entities

	b.WriteString("EXTRACTED FROM QUERY:\n")
	if e.Intent != "" {
		b.WriteString("Intent: " + e.Intent + "\n")
	}
	writeList(&b, "Dates", e.Dates)
	writeList(&b, "Categories", e.Categories)
	writeList(&b, "Authors", e.Authors)
	writeList(&b, "Search terms", e.SearchTerms)

	b.WriteString("\nRELEVANT TOOLS:\n")
	b.WriteString(strings.Repeat("=", 40))

	for pair := r.SelectedTools.Oldest(); pair != nil; pair = pair.Next() {
		sel := pair.Value
		b.WriteString("\n\nTool: " + pair.Key + " (Score: " + strconv.Itoa(sel.Score) + ")\n")
		b.WriteString("Description: " + sel.Tool.Description + "\n")

		if required := sel.Tool.RequiredParams(); len(required) > 0 {
			b.WriteString("Required parameters:\n")
			writeParams(&b, required)
		}
		if optional := sel.Tool.OptionalParams(); len(optional) > 0 {
			if len(optional) > MaxOptionalParams {
				optional = optional[:MaxOptionalParams]
			}
			b.WriteString("Key optional parameters:\n")
			writeParams(&b, optional)
		}
		b.WriteString(strings.Repeat("-", 25))
	}
	return b.String()
}

func writeParams(b *strings.Builder, params []schema.Param) {
	for _, p := range params {
		b.WriteString("  - " + p.Name + " (" + p.Type + ")")
		if p.Description != "" {
			b.WriteString(": " + p.Description)
		}
		b.WriteString("\n")
	}
}

func writeList(b *strings.Builder, label string, list []string) {
	if len(list) == 0 {
		return
	}
	b.WriteString(label + ": " + llmutils.FormatList(list) + "\n")
}

