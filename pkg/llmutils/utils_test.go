package llmutils_test

import (
	"testing"

	"github.com/effective-security/toolrouter/pkg/llmutils"
	"github.com/stretchr/testify/assert"
)

func Test_TrimBackticks(t *testing.T) {
	expected := "{\"city\": \"Paris\", \"country\": \"France\"}"

	assert.Equal(t, expected, llmutils.TrimBackticks("\n```json\n\n{\"city\": \"Paris\", \"country\": \"France\"}\n\n```\n\n"))
	// the same
	assert.Equal(t, expected, llmutils.TrimBackticks(expected))
	assert.Equal(t, expected, llmutils.TrimBackticks("\n```\n\n{\"city\": \"Paris\", \"country\": \"France\"}\n\n```\n\n"))
	assert.Equal(t, expected, llmutils.TrimBackticks("\n```{\"city\": \"Paris\", \"country\": \"France\"}\n\n```\n\n"))
}

func Test_NormalizeBraces(t *testing.T) {
	tcases := []struct {
		in  string
		exp string
	}{
		{`{"action": "x"}`, `{"action": "x"}`},
		{`{{"action": "x"}}`, `{"action": "x"}`},
		{`  {{"action": "x", "arguments": {{"limit": "10"}}}}  `, `{"action": "x", "arguments": {"limit": "10"}}`},
		{`plain text`, `plain text`},
	}
	for _, tc := range tcases {
		assert.Equal(t, tc.exp, llmutils.NormalizeBraces(tc.in), tc.in)
	}
}

func Test_CloseBraces(t *testing.T) {
	s, ok := llmutils.CloseBraces(`Sure: {"action": "x", "arguments": {"a": 1}`)
	assert.True(t, ok)
	assert.Equal(t, `{"action": "x", "arguments": {"a": 1}}`, s)

	s, ok = llmutils.CloseBraces(`{"a": 1}`)
	assert.True(t, ok)
	assert.Equal(t, `{"a": 1}`, s)

	_, ok = llmutils.CloseBraces("no json here")
	assert.False(t, ok)
}

func Test_ObjectSlice(t *testing.T) {
	s, ok := llmutils.ObjectSlice(`here {"a": 1} trailing`)
	assert.True(t, ok)
	assert.Equal(t, `{"a": 1}`, s)

	_, ok = llmutils.ObjectSlice(`} {`)
	assert.False(t, ok)
}

func Test_Truncate(t *testing.T) {
	assert.Equal(t, "abc", llmutils.Truncate("abc", 5))
	assert.Equal(t, "ab...", llmutils.Truncate("abcdef", 2))
}

func Test_EnsureNewline(t *testing.T) {
	assert.Equal(t, "", llmutils.EnsureEndsWithNewline(" \n"))
	assert.Equal(t, "Hello\n", llmutils.EnsureEndsWithNewline(" \nHello"))
	assert.Equal(t, "Hello\n", llmutils.EnsureEndsWithNewline("\nHello\n"))
	assert.Equal(t, "Hello\n", llmutils.EnsureEndsWithNewline("Hello\n\n\n"))
}

func Test_JSONIndent(t *testing.T) {
	input := `{"name":"John","age":30}`
	expected := "{\n\t\"name\": \"John\",\n\t\"age\": 30\n}"
	assert.Equal(t, expected, llmutils.JSONIndent(input))
}

func Test_ToJSON(t *testing.T) {
	type Person struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	p := Person{Name: "John", Age: 30}
	assert.Equal(t, `{"name":"John","age":30}`, llmutils.ToJSON(p))
	assert.Equal(t, "{\n  \"name\": \"John\",\n  \"age\": 30\n}", llmutils.ToJSONIndent(p))
}

func Test_ToYAML(t *testing.T) {
	type Person struct {
		Name string `yaml:"name"`
		Age  int    `yaml:"age"`
	}
	p := Person{Name: "John", Age: 30}
	assert.Equal(t, "name: John\nage: 30\n", llmutils.ToYAML(p))
}

func Test_MarkdownToHTML(t *testing.T) {
	html := llmutils.MarkdownToHTML("## Headlines\n\n- **first** story\n- second story\n")
	assert.Contains(t, html, "<h2>Headlines</h2>")
	assert.Contains(t, html, "<ul>")
	assert.Contains(t, html, "<strong>first</strong>")
}

func Test_FormatList(t *testing.T) {
	assert.Equal(t, "[]", llmutils.FormatList(nil))
	assert.Equal(t, "['a', 'b']", llmutils.FormatList([]string{"a", "b"}))
}
