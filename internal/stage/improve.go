package stage

import (
	"context"
	"fmt"
	"strings"
)

// #region improver
// Improver rewrites a draft addressing every issue the critique raised.
type Improver struct {
	client Completer
}

// NewImprover creates the improvement stage.
func NewImprover(client Completer) *Improver {
	return &Improver{client: client}
}

// Run rewrites the draft guided by the critique.
func (i *Improver) Run(ctx context.Context, ic ImproveContext) (Output, error) {
	text, err := i.client.Complete(ctx, improveSystemPrompt(ic.Mode), improveUserPrompt(ic))
	if err != nil {
		return Output{}, fmt.Errorf("improve stage: %w", err)
	}
	return Output{Kind: KindImproved, Stage: "improve", Text: text}, nil
}

// #endregion improver

// #region prompts
func improveSystemPrompt(mode Mode) string {
	if mode.IsStrict() {
		return "You are Agni, an expert optimizer. " +
			"Rewrite the solution fixing all issues from the critique. " +
			"Use ONLY information from the provided document chunks, remove everything else, " +
			"and state explicitly when information is missing from the documents."
	}
	return "You are Agni, a disciplined expert optimizer. " +
		"Systematically improve the solution by addressing ALL critique points. " +
		"Do not just fix bugs: add features, improve quality, enhance robustness. " +
		"Focus on high-impact improvements."
}

func improveUserPrompt(ic ImproveContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original Task: %s\n", ic.Task)
	fmt.Fprintf(&b, "\n--- Original Output ---\n%s\n", ic.Draft)
	fmt.Fprintf(&b, "\n--- Critique and Issues Found ---\n%s\n", ic.Critique)

	if len(ic.Chunks) > 0 {
		b.WriteString("\n--- Document Context ---\n")
		for i, chunk := range ic.Chunks {
			fmt.Fprintf(&b, "[Chunk %d]\n%s\n", i+1, chunk)
		}
		if ic.Mode.IsStrict() {
			b.WriteString("\nRemove every claim not explicitly stated in the chunks above. " +
				"Cite the chunk number for each fact; prefer incomplete but accurate over complete but unsupported.\n")
		} else {
			b.WriteString("\nEnsure all claims are grounded in the document context.\n")
		}
	}

	if ic.Mode.IsCode() {
		b.WriteString("\nAddress every critique point. Add error handling, type annotations, " +
			"docstrings, input validation, edge-case handling and unit tests; " +
			"improve structure and remove duplication. " +
			"Make at least 3 substantial improvements that were not in the original.\n")
	} else {
		b.WriteString("\nAddress every critique point. Improve accuracy, clarity and completeness; " +
			"add explanations and examples where the critique found gaps. " +
			"Write prose only, without code fences.\n")
	}
	return b.String()
}

// #endregion prompts
