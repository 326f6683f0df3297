package analysis

import (
	"strings"
	"unicode/utf8"
)

const (
	beginEntry = "<<<BEGIN_OF_JOURNAL_ENTRY>>>"
	endEntry   = "<<<END_OF_JOURNAL_ENTRY>>>"
)

// BuildPrompt asks the model for a's JSON about text.
func BuildPrompt(a Analyzer, text string) string {
	var sb strings.Builder

	sb.WriteString("Respond ONLY in JSON. No prose. No comments.\n\n")
	sb.WriteString(`Key "` + a.Name() + "\"\n")

	sb.WriteString("Instructions:\n")
	sb.WriteString(strings.TrimSpace(a.Instructions()))
	sb.WriteString("\n\n")

	sb.WriteString(`JSON schema for "` + a.Name() + "\":\n")
	sb.WriteString(a.Shape().String())
	sb.WriteString("\n\n")

	sb.WriteString("If you cannot infer anything, return an empty array [] or empty object {} matching the shape.\n\n")

	sb.WriteString(beginEntry + "\n")
	sb.WriteString(text)
	sb.WriteString("\n" + endEntry + "\n")

	return sb.String()
}

// Truncate cuts text to limit characters, marking the cut with an ellipsis.
// limit <= 0 leaves text alone.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "…"
}
