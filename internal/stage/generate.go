package stage

import (
	"context"
	"fmt"
	"strings"
)

// #region generator
// Generator produces the first-pass solution. The draft is intentionally
// minimal in loose modes; later stages add the missing rigor.
type Generator struct {
	client Completer
}

// NewGenerator creates the generation stage.
func NewGenerator(client Completer) *Generator {
	return &Generator{client: client}
}

// Run produces a draft in one blocking completion call.
func (g *Generator) Run(ctx context.Context, gc GenerateContext) (Output, error) {
	text, err := g.client.Complete(ctx, generateSystemPrompt(gc.Mode), generateUserPrompt(gc))
	if err != nil {
		return Output{}, fmt.Errorf("generate stage: %w", err)
	}
	return Output{Kind: KindDraft, Stage: "generate", Text: text}, nil
}

// RunStream produces a draft while forwarding tokens to the channel as
// they arrive.
func (g *Generator) RunStream(ctx context.Context, gc GenerateContext, tokens chan<- string) (Output, error) {
	text, err := g.client.CompleteStream(ctx, generateSystemPrompt(gc.Mode), generateUserPrompt(gc), tokens)
	if err != nil {
		return Output{}, fmt.Errorf("generate stage: %w", err)
	}
	return Output{Kind: KindDraft, Stage: "generate", Text: text}, nil
}

// #endregion generator

// #region prompts
func generateSystemPrompt(mode Mode) string {
	if mode.IsStrict() {
		return "You are Yantra, an expert problem solver with strict accuracy requirements. " +
			"Answer EXCLUSIVELY from the provided document chunks. " +
			"Do not add external knowledge, inferences or assumptions. " +
			"If something is not stated in the documents, say: " +
			"'This information is not available in the uploaded documents.' " +
			"Quote exact phrases where possible and cite chunk numbers for each fact."
	}
	if mode.IsCode() {
		return "You are Yantra, an expert problem solver. " +
			"Generate ONLY a MINIMAL working version: the simplest possible program " +
			"that handles the main happy path. " +
			"No error handling, no type hints, no docstrings, no tests, " +
			"no input validation, no optimization, minimal comments. " +
			"All improvements come in later iterations."
	}
	return "You are Yantra, an expert explainer. " +
		"Write a clear first-pass answer in plain prose. " +
		"Do not include code or code fences. " +
		"Keep it direct; depth and polish come in later iterations."
}

func generateUserPrompt(gc GenerateContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", gc.Task)

	if !gc.Mode.IsStrict() && gc.Mode.IsCode() {
		b.WriteString("\nGenerate the absolute minimum working solution for the basic case. " +
			"Skip error handling, type hints, documentation, tests, validation and optimization entirely.\n")
	}

	if len(gc.Chunks) > 0 {
		b.WriteString("\n--- Relevant Document Context ---\n")
		for i, chunk := range gc.Chunks {
			fmt.Fprintf(&b, "[Chunk %d]\n%s\n", i+1, chunk)
		}
		if gc.Mode.IsStrict() {
			b.WriteString("\nAnswer using ONLY the chunks above. State explicitly when information is missing, " +
				"and reference chunk numbers for every claim.\n")
		} else {
			b.WriteString("\nBase your answer primarily on the document context above; " +
				"prioritize it over general knowledge.\n")
		}
	}

	if len(gc.PastExamples) > 0 {
		b.WriteString("\n--- Successful Past Solutions for Similar Tasks ---\n")
		for i, ex := range gc.PastExamples {
			fmt.Fprintf(&b, "[Example %d]\n%s\n", i+1, ex)
		}
		b.WriteString("\nUse these examples as reference for patterns that worked before.\n")
	}

	if gc.Extra != "" {
		fmt.Fprintf(&b, "\n--- Additional Context ---\n%s\n", gc.Extra)
	}

	return b.String()
}

// #endregion prompts
