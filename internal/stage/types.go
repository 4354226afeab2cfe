package stage

import "context"

// #region mode
// Mode names one prompt-policy variant. It folds the code/prose and
// loose/strict-grounding axes into a single tag so invalid combinations
// cannot be constructed.
type Mode int

const (
	ModeCode Mode = iota
	ModeProse
	ModeCodeStrict
	ModeProseStrict
)

// IsCode reports whether the expected output is code.
func (m Mode) IsCode() bool {
	return m == ModeCode || m == ModeCodeStrict
}

// IsStrict reports whether answers are restricted to supplied chunks.
func (m Mode) IsStrict() bool {
	return m == ModeCodeStrict || m == ModeProseStrict
}

// ResolveMode maps the two request flags onto a Mode tag.
func ResolveMode(isCode, strict bool) Mode {
	switch {
	case isCode && strict:
		return ModeCodeStrict
	case isCode:
		return ModeCode
	case strict:
		return ModeProseStrict
	default:
		return ModeProse
	}
}

func (m Mode) String() string {
	switch m {
	case ModeCode:
		return "code"
	case ModeProse:
		return "prose"
	case ModeCodeStrict:
		return "code_strict"
	case ModeProseStrict:
		return "prose_strict"
	}
	return "unknown"
}

// #endregion mode

// #region kind
// Kind tags which stage produced an output.
type Kind string

const (
	KindDraft    Kind = "draft"
	KindCritique Kind = "critique"
	KindImproved Kind = "improved"
)

// #endregion kind

// #region output
// Output is one stage's product within an iteration. Immutable once created.
type Output struct {
	Kind  Kind
	Stage string
	Text  string
}

// #endregion output

// #region completer
// Completer abstracts the language completion service consumed by stages.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	CompleteStream(ctx context.Context, system, user string, tokens chan<- string) (string, error)
}

// #endregion completer

// #region contexts
// GenerateContext bundles everything the generation stage may see.
type GenerateContext struct {
	Task         string
	Extra        string // optional caller-supplied context
	Chunks       []string
	PastExamples []string
	Mode         Mode
}

// CritiqueContext bundles the inputs of the critique stage.
type CritiqueContext struct {
	Task   string
	Draft  string
	Chunks []string
	Mode   Mode
}

// ImproveContext bundles the inputs of the improvement stage.
type ImproveContext struct {
	Task     string
	Draft    string
	Critique string
	Chunks   []string
	Mode     Mode
}

// #endregion contexts
