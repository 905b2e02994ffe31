package llmutils

import (
	"bytes"
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// TrimBackticks removes ```json or ```
func TrimBackticks(text string) string {
	return string(BytesTrimBackticks([]byte(text)))
}

var backtick = []byte("```")

// BytesTrimBackticks removes ```json or ```
func BytesTrimBackticks(bs []byte) []byte {
	size := len(bs)
	startIndex := bytes.Index(bs, backtick)
	if startIndex == -1 {
		return bs
	}
	startIndex += len(backtick)

	for i := startIndex; i < size && bs[i] != '{' && bs[i] != '['; i++ {
		if bs[i] == '\n' {
			startIndex = i + 1
			break
		}
	}

	contentAfterStart := bs[startIndex:]

	endIndex := bytes.LastIndex(contentAfterStart, backtick)
	if endIndex == -1 {
		return contentAfterStart
	}

	return bytes.TrimSpace(contentAfterStart[:endIndex])
}

// NormalizeBraces fixes template-style braces that models copy from
// prompt examples: a response wrapped in `{{ ... }}` loses one outer layer,
// then every remaining `{{` and `}}` is collapsed to a single brace.
func NormalizeBraces(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "{{") && strings.HasSuffix(text, "}}") {
		text = text[1 : len(text)-1]
	}
	if strings.Contains(text, "{{") || strings.Contains(text, "}}") {
		text = strings.ReplaceAll(text, "{{", "{")
		text = strings.ReplaceAll(text, "}}", "}")
	}
	return text
}

// CloseBraces returns the text starting at the first `{`,
// with missing closing braces appended.
// The second value is false when the text has no `{`.
func CloseBraces(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return text, false
	}
	part := text[start:]
	if missing := strings.Count(part, "{") - strings.Count(part, "}"); missing > 0 {
		part += strings.Repeat("}", missing)
	}
	return part, true
}

// ObjectSlice returns the text between the first `{` and the last `}`, inclusive.
func ObjectSlice(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

// FormatList renders a list as ['a', 'b'], the form used across prompts
func FormatList(list []string) string {
	quoted := make([]string, len(list))
	for i, s := range list {
		quoted[i] = "'" + s + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// Truncate returns at most n runes of s, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func JSONIndent(body string) string {
	var buf bytes.Buffer
	_ = json.Indent(&buf, []byte(body), "", "\t")
	return buf.String()
}

func ToJSON(val any) string {
	js, _ := json.Marshal(val)
	return string(js)
}

func ToJSONIndent(val any) string {
	js, _ := json.MarshalIndent(val, "", "  ")
	return string(js)
}

func ToYAML(val any) string {
	js, _ := yaml.Marshal(val)
	return string(js)
}

// EnsureEndsWithNewline ensures the message ends with a newline,
// it also removes any extra leading and trailing spaces.
func EnsureEndsWithNewline(s string) string {
	s = strings.TrimSpace(s)
	c := len(s)
	if c == 0 {
		return s
	}
	if s[c-1] != '\n' {
		return s + "\n"
	}
	return s
}
