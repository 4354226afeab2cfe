package stage

import (
	"context"
	"fmt"
	"strings"
)

// #region critic
// Critic reviews a draft and enumerates concrete, actionable issues for
// the improvement stage to fix.
type Critic struct {
	client Completer
}

// NewCritic creates the critique stage.
func NewCritic(client Completer) *Critic {
	return &Critic{client: client}
}

// Run reviews the draft against the task and any reference chunks.
func (c *Critic) Run(ctx context.Context, cc CritiqueContext) (Output, error) {
	text, err := c.client.Complete(ctx, critiqueSystemPrompt(cc.Mode), critiqueUserPrompt(cc))
	if err != nil {
		return Output{}, fmt.Errorf("critique stage: %w", err)
	}
	return Output{Kind: KindCritique, Stage: "critique", Text: text}, nil
}

// #endregion critic

// #region prompts
func critiqueSystemPrompt(mode Mode) string {
	if mode.IsStrict() {
		return "You are Sutra, a strict expert reviewer. " +
			"Verify that every statement in the output comes ONLY from the provided documents. " +
			"Flag any claim not directly supported by the chunks as HALLUCINATION, " +
			"including inferences and general knowledge."
	}
	return "You are Sutra, a disciplined expert reviewer. " +
		"Systematically identify what is missing or needs improvement. " +
		"Find at least 5 concrete improvement areas; for each state what is wrong, " +
		"why it matters and how to fix it."
}

func critiqueUserPrompt(cc CritiqueContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original Task: %s\n", cc.Task)
	fmt.Fprintf(&b, "\n--- Output Under Review ---\n%s\n", cc.Draft)

	if len(cc.Chunks) > 0 {
		b.WriteString("\n--- Document Context (for verification) ---\n")
		for i, chunk := range cc.Chunks {
			fmt.Fprintf(&b, "[Chunk %d]\n%s\n", i+1, chunk)
		}
		if cc.Mode.IsStrict() {
			b.WriteString("\nCheck EVERY claim against the chunks above and flag anything unsupported.\n")
		} else {
			b.WriteString("\nFlag any claims not supported by the document context.\n")
		}
	}

	if cc.Mode.IsCode() {
		b.WriteString("\nCheck systematically: error handling, type annotations, documentation, " +
			"edge cases, tests, input validation, performance, structure, naming, duplication, imports.\n")
	} else {
		b.WriteString("\nCheck systematically: accuracy, clarity, structure, completeness, " +
			"missing explanations and missing examples.\n")
	}
	b.WriteString("List the issues as specific, actionable items.\n")
	return b.String()
}

// #endregion prompts
