package structured

import (
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")

// ExtractJSON pulls the JSON payload out of oracle text. A fenced Markdown
// block wins when present; otherwise the span from the first '{' to the last
// '}' is taken. Text with neither is returned trimmed so the parse error
// surfaces to the caller.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)

	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
