package orchestrator

// #region imports
import (
	"github.com/AP2611/Chakra/internal/analytics"
	"github.com/AP2611/Chakra/internal/eval"
	"github.com/AP2611/Chakra/internal/memory"
	"github.com/AP2611/Chakra/internal/retrieval"
	"github.com/AP2611/Chakra/internal/stage"
)

// #endregion

// #region task

// Task is one immutable refinement request.
type Task struct {
	Description     string
	Context         string   // optional caller-supplied context
	IsCode          bool     // expected output is code
	Strict          bool     // answer only from supplied reference chunks
	ReferenceChunks []string // pre-supplied chunks; skips corpus retrieval
}

// Mode resolves the task's prompt-policy variant.
func (t Task) Mode() stage.Mode {
	return stage.ResolveMode(t.IsCode, t.Strict)
}

// #endregion

// #region config

// Config holds the run budget and context limits.
type Config struct {
	MaxIterations  int     // hard iteration cap
	MinImprovement float64 // plateau threshold on the score delta
	TopK           int     // reference chunks fed to each stage
	PastExamples   int     // past solutions fed to iteration 1
	UseRetrieval   bool    // fetch corpus chunks when the task supplies none
}

// DefaultConfig returns the standard run budget.
func DefaultConfig() Config {
	return Config{
		MaxIterations:  3,
		MinImprovement: 0.05,
		TopK:           3,
		PastExamples:   3,
	}
}

// #endregion

// #region iteration-record

// IterationRecord captures one completed pass of the refinement loop.
// Critique and Improved are nil when the iteration was truncated early;
// the background-continuation path completes a partially-created record
// before anything else observes it.
type IterationRecord struct {
	Index    int // 1-based
	Draft    *stage.Output
	Critique *stage.Output
	Improved *stage.Output
	Score    eval.Breakdown
	Delta    float64 // signed score delta vs. previous iteration, 0.0 for iteration 1
}

// Solution returns the iteration's final text: the improved output when
// present, otherwise the draft.
func (r IterationRecord) Solution() string {
	if r.Improved != nil {
		return r.Improved.Text
	}
	if r.Draft != nil {
		return r.Draft.Text
	}
	return ""
}

// #endregion

// #region result

// Result is the outcome of one task run.
type Result struct {
	RunID           string
	Task            string
	Solution        string // best-scoring solution, not necessarily the last
	Score           float64
	Iterations      []IterationRecord
	TotalIterations int
	UsedChunks      bool
	Chunks          []string // reference chunks fed to the stages, if any
}

// #endregion

// #region events

// EventType tags a progress event within one task run.
type EventType string

const (
	EventToken              EventType = "token"
	EventDraftReady         EventType = "draft_ready"
	EventImprovementStarted EventType = "improving_started"
	EventImprovedReady      EventType = "improved"
	EventIterationComplete  EventType = "iteration_complete"
	EventFinal              EventType = "final"
	EventError              EventType = "error"
)

// Event carries one unit of run progress. Consumers observe events in
// causal order within a run.
type Event struct {
	Type      EventType
	Iteration int     // 1-based; 0 for run-level events
	Token     string  // EventToken
	Text      string  // draft / improved / final solution text
	Score     float64 // EventIterationComplete, EventFinal
	Err       string  // EventError
}

// EventSink receives progress events. A non-nil error marks the consumer
// as unreachable; emission is best-effort and failures are logged and
// swallowed, never propagated into the run.
type EventSink func(Event) error

// #endregion

// #region collaborators

// MemoryStore is the past-solution memory consumed by the orchestrator.
type MemoryStore interface {
	Save(task, solution string, score float64, meta memory.Meta) error
	RetrieveSimilar(task string, limit int) ([]memory.Entry, error)
}

// ChunkSource ranks corpus chunks for a query.
type ChunkSource interface {
	Retrieve(query string, topK int) []retrieval.ScoredChunk
}

// RunRecorder accepts per-run analytics rows off the critical path.
type RunRecorder interface {
	RecordRun(rec analytics.RunRecord) error
}

// #endregion
