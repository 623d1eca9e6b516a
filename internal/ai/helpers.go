package ai

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed prompts/registry_question.txt
var registryQuestionPrompt string

// maxAnswerTokens bounds every completion; answers are one or two sentences.
const maxAnswerTokens = 300

// buildQuestionContent builds the user message shared by all providers.
func buildQuestionContent(question, registrySummary string) string {
	var b strings.Builder
	b.WriteString("Registry summary:\n")
	b.WriteString(strings.TrimSpace(registrySummary))
	fmt.Fprintf(&b, "\n\nQuestion: %s\n", strings.TrimSpace(question))
	return b.String()
}
