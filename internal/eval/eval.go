package eval

import (
	"regexp"
	"strings"
)

// #region patterns

var (
	reDefinition    = regexp.MustCompile(`(?m)\bdef\s+\w+|\bfunction\s+\w+|\bfunc\s+\w+|\bclass\s+\w+`)
	reErrorHandling = regexp.MustCompile(`try:|except|catch\s*\(|if\s+err\s*!=\s*nil`)
	reTypeHints     = regexp.MustCompile(`def\s+\w+\s*\([^)]*:\s*\w+|->\s*\w+|\w+\s*:\s*(int|str|float|bool|list|dict|List|Dict|Optional)`)
	reDocstrings    = regexp.MustCompile(`(?s)""".*?"""|'''.*?'''`)
	reComments      = regexp.MustCompile(`(?m)#.*|//.*|/\*`)
	reImports       = regexp.MustCompile(`(?m)^import\s+|^from\s+\w+\s+import`)
	reTests         = regexp.MustCompile(`(?i)def test_|@pytest|unittest|assert\s+`)
	reErrorKinds    = regexp.MustCompile(`ValueError|TypeError|KeyError|IndexError|AttributeError|Exception`)
	reRaise         = regexp.MustCompile(`ValueError|TypeError|Exception|raise\s+`)
	reTodo          = regexp.MustCompile(`(?i)TODO|FIXME|XXX|HACK`)
	reMainGuard     = regexp.MustCompile(`(?i)if __name__|main\(\)`)
	reValidation    = regexp.MustCompile(`(?i)if.*is None|if.*not|if.*empty|validate|check`)
	reOptimization  = regexp.MustCompile(`(?i)cache|memoize|@lru_cache|O\(|complexity|optimize`)
	reHandling      = regexp.MustCompile(`(?i)try:|except|if.*error|if.*None|if.*empty`)
	reCitation      = regexp.MustCompile(`(?i)\[.*?\]|\(.*?\)|source|document|according`)
	reMarkdown      = regexp.MustCompile(`\*\*.*?\*\*|(?m)^#+\s+`)
)

// connectives are explanatory markers that raise the clarity score of prose.
var connectives = []string{
	"because", "therefore", "however", "this means", "in other words",
	"for instance", "such as", "first", "second", "finally",
}

// exampleMarkers raise prose completeness when the answer illustrates its claims.
var exampleMarkers = []string{"for example", "e.g.", "example:"}

// #endregion patterns

// #region evaluate

// Evaluate scores a candidate solution against its task. It never fails:
// malformed or empty input simply lands at the base floor. iteration is the
// 1-based loop index and feeds a small bonus capped at +0.05.
func Evaluate(solution, task string, isCode bool, refChunks []string, iteration int) Breakdown {
	var b Breakdown
	if isCode {
		b = evaluateCode(solution, task)
	} else {
		b = evaluateProse(solution, refChunks)
	}
	b.Total += iterationBonus(iteration)
	b.Total = clamp01(b.Total)
	return b
}

// iterationBonus is monotonically non-decreasing in the iteration index and
// never exceeds 0.05.
func iterationBonus(iteration int) float64 {
	if iteration < 1 {
		return 0
	}
	bonus := 0.01 * float64(iteration)
	if bonus > 0.05 {
		bonus = 0.05
	}
	return bonus
}

// #endregion evaluate

// #region evaluate-code

// evaluateCode scores code with deliberately low base values so a minimal
// first draft is forced to iterate.
func evaluateCode(code, task string) Breakdown {
	correctness := 0.10
	quality := 0.05
	completeness := 0.05

	taskLower := strings.ToLower(task)

	if reDefinition.MatchString(code) {
		completeness += 0.05
		correctness += 0.05
	}

	hasErrorHandling := reErrorHandling.MatchString(code)
	hasTypeHints := reTypeHints.MatchString(code)
	hasDocstrings := reDocstrings.MatchString(code)
	hasComments := reComments.MatchString(code)

	practices := 0
	for _, ok := range []bool{hasErrorHandling, hasTypeHints, hasDocstrings, hasComments} {
		if ok {
			practices++
		}
	}
	quality += float64(practices) * 0.2
	if practices == 4 {
		quality += 0.1
	}

	if reImports.MatchString(code) {
		quality += 0.05
	}

	testCount := len(reTests.FindAllString(code, -1))
	if testCount > 0 {
		quality += 0.15
		completeness += 0.15
		if testCount >= 3 {
			quality += 0.1
			completeness += 0.1
		}
	}

	if hasErrorHandling && reRaise.MatchString(code) {
		correctness += 0.2
		quality += 0.1
	}
	if len(reErrorKinds.FindAllString(code, -1)) >= 2 {
		correctness += 0.1
	}

	// Requirements explicitly named in the task earn credit when satisfied.
	met, total := 0, 0
	requirement := func(requested, satisfied bool, onMet func()) {
		if !requested {
			return
		}
		total++
		if satisfied {
			met++
			onMet()
		}
	}
	requirement(
		strings.Contains(taskLower, "error handling") || strings.Contains(taskLower, "handle") || strings.Contains(taskLower, "exception"),
		hasErrorHandling && reHandling.MatchString(code),
		func() { correctness += 0.1; completeness += 0.05 },
	)
	requirement(
		strings.Contains(taskLower, "type") && (strings.Contains(taskLower, "hint") || strings.Contains(taskLower, "annotation")),
		hasTypeHints,
		func() { quality += 0.1 },
	)
	requirement(
		strings.Contains(taskLower, "test") || strings.Contains(taskLower, "unit"),
		reTests.MatchString(code),
		func() { completeness += 0.1; quality += 0.05 },
	)
	requirement(
		strings.Contains(taskLower, "optimize") || strings.Contains(taskLower, "performance") || strings.Contains(taskLower, "efficient"),
		reOptimization.MatchString(code),
		func() { quality += 0.1 },
	)
	requirement(
		strings.Contains(taskLower, "docstring") || strings.Contains(taskLower, "documentation") || strings.Contains(taskLower, "doc"),
		hasDocstrings,
		func() { quality += 0.08 },
	)
	requirement(
		strings.Contains(taskLower, "validate") || strings.Contains(taskLower, "validation"),
		reValidation.MatchString(code),
		func() { correctness += 0.1 },
	)
	if total > 0 {
		completeness += float64(met) / float64(total) * 0.2
	}

	if reTodo.MatchString(code) {
		quality -= 0.05
	}
	if reMainGuard.MatchString(code) {
		completeness += 0.05
	}

	correctness = clamp01(correctness)
	quality = clamp01(quality)
	completeness = clamp01(completeness)

	weighted := correctness*0.4 + quality*0.4 + completeness*0.2
	if weighted < 0.05 {
		weighted = 0.05
	}
	if weighted > 1.0 {
		weighted = 1.0
	}

	return Breakdown{
		IsCode:       true,
		Correctness:  correctness,
		Quality:      quality,
		Completeness: completeness,
		Total:        weighted,
	}
}

// #endregion evaluate-code

// #region evaluate-prose

// evaluateProse scores a non-code answer on grounding, clarity and
// completeness. Grounding is lexical-set overlap against the concatenated
// reference chunks, scaled into [0.3, 1.0].
func evaluateProse(answer string, refChunks []string) Breakdown {
	grounding := 0.5
	if len(refChunks) > 0 {
		grounding = 0.3
	}
	clarity := 0.3
	completeness := 0.3

	lower := strings.ToLower(answer)
	words := strings.Fields(answer)
	wordCount := len(words)

	// Clarity: length thresholds, explanatory connectives, formatting.
	if wordCount >= 50 {
		clarity += 0.2
	}
	if wordCount >= 100 {
		clarity += 0.2
	}
	connectiveCredit := 0.0
	for _, c := range connectives {
		if strings.Contains(lower, c) {
			connectiveCredit += 0.05
		}
	}
	if connectiveCredit > 0.2 {
		connectiveCredit = 0.2
	}
	clarity += connectiveCredit
	if len(strings.Split(answer, "\n")) > 3 {
		clarity += 0.1
	}
	if reMarkdown.MatchString(answer) {
		clarity += 0.1
	}

	// Completeness: length thresholds plus example credit.
	if wordCount >= 30 {
		completeness += 0.2
	}
	if wordCount >= 80 {
		completeness += 0.2
	}
	if wordCount >= 150 {
		completeness += 0.2
	}
	for _, m := range exampleMarkers {
		if strings.Contains(lower, m) {
			completeness += 0.1
			break
		}
	}

	if len(refChunks) > 0 {
		refSet := wordSet(strings.ToLower(strings.Join(refChunks, " ")))
		answerWords := wordSet(lower)
		overlap := 0
		for w := range answerWords {
			if refSet[w] {
				overlap++
			}
		}
		coverage := 0.0
		if len(answerWords) > 0 {
			coverage = float64(overlap) / float64(len(answerWords))
		}
		grounding = 0.3 + 0.7*coverage
		if reCitation.MatchString(lower) {
			grounding += 0.1
		}
	}

	grounding = clamp01(grounding)
	clarity = clamp01(clarity)
	completeness = clamp01(completeness)

	weighted := grounding*0.3 + clarity*0.35 + completeness*0.35
	if weighted < 0.05 {
		weighted = 0.05
	}
	if weighted > 1.0 {
		weighted = 1.0
	}

	return Breakdown{
		Grounding:    grounding,
		Clarity:      clarity,
		Completeness: completeness,
		Total:        weighted,
	}
}

// #endregion evaluate-prose

// #region helpers

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, ".,;:!?\"'()[]")
		if w != "" {
			set[w] = true
		}
	}
	return set
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
