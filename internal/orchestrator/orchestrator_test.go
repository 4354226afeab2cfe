package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/AP2611/Chakra/internal/analytics"
	"github.com/AP2611/Chakra/internal/memory"
	"github.com/AP2611/Chakra/internal/retrieval"
)

// #region fixtures

const draftPython = `def add(a, b):
    return a + b`

const improvedPython = `import math

def add(a: int, b: int) -> int:
    """Add two numbers.

    Raises TypeError for non-numeric input.
    """
    # reject anything that is not a number
    if not isinstance(a, (int, float)) or not isinstance(b, (int, float)):
        raise TypeError("expected numbers")
    try:
        return a + b
    except Exception as exc:
        raise ValueError("addition failed") from exc

def test_add():
    assert add(1, 2) == 3
    assert add(-1, 1) == 0
    assert add(0, 0) == 0

if __name__ == "__main__":
    test_add()
`

// #endregion fixtures

// #region fakes

// scriptedClient replays canned stage outputs, dispatching on the persona
// named in the system prompt.
type scriptedClient struct {
	mu sync.Mutex

	draft    string
	improved []string // consumed per improve call; the last entry repeats

	failGenerate bool
	failCritique bool

	generatePrompts []string
	improveCalls    int
}

func (c *scriptedClient) respond(system, user string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case strings.Contains(system, "Yantra"):
		if c.failGenerate {
			return "", errors.New("model unreachable")
		}
		c.generatePrompts = append(c.generatePrompts, user)
		return c.draft, nil
	case strings.Contains(system, "Sutra"):
		if c.failCritique {
			return "", errors.New("critique backend down")
		}
		return "needs error handling, types, docs and tests", nil
	case strings.Contains(system, "Agni"):
		i := c.improveCalls
		c.improveCalls++
		if i >= len(c.improved) {
			i = len(c.improved) - 1
		}
		return c.improved[i], nil
	}
	return "", errors.New("unknown persona")
}

func (c *scriptedClient) Complete(_ context.Context, system, user string) (string, error) {
	return c.respond(system, user)
}

func (c *scriptedClient) CompleteStream(_ context.Context, system, user string, tokens chan<- string) (string, error) {
	text, err := c.respond(system, user)
	if err != nil {
		return "", err
	}
	for _, tok := range strings.SplitAfter(text, " ") {
		tokens <- tok
	}
	return text, nil
}

// fakeMemory implements MemoryStore in process.
type fakeMemory struct {
	entries     []memory.Entry
	retrieveErr error

	savedTask  string
	savedScore float64
	saveCalls  int
}

func (m *fakeMemory) Save(task, solution string, score float64, _ memory.Meta) error {
	m.saveCalls++
	m.savedTask, m.savedScore = task, score
	return nil
}

func (m *fakeMemory) RetrieveSimilar(string, int) ([]memory.Entry, error) {
	return m.entries, m.retrieveErr
}

// fakeCorpus returns fixed chunks for any query.
type fakeCorpus struct{ chunks []retrieval.ScoredChunk }

func (c *fakeCorpus) Retrieve(string, int) []retrieval.ScoredChunk { return c.chunks }

// fakeRecorder captures analytics rows.
type fakeRecorder struct{ recs []analytics.RunRecord }

func (r *fakeRecorder) RecordRun(rec analytics.RunRecord) error {
	r.recs = append(r.recs, rec)
	return nil
}

func codeTask() Task {
	return Task{Description: "Write a function to add two numbers", IsCode: true}
}

// #endregion fakes

// #region loop

func TestProcessRunsAtLeastTwoIterations(t *testing.T) {
	client := &scriptedClient{draft: draftPython, improved: []string{improvedPython}}
	o := New(client, nil, nil, nil, Config{MaxIterations: 3, MinImprovement: 0.05})

	result, err := o.Process(context.Background(), codeTask())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// Identical improved output plateaus, but the first delta check only
	// happens after the second iteration completes.
	if result.TotalIterations != 2 {
		t.Fatalf("iterations = %d, want 2", result.TotalIterations)
	}
	if result.RunID == "" {
		t.Fatal("missing run ID")
	}
	if result.Solution != improvedPython {
		t.Fatal("solution is not the improved output")
	}
	if result.Score < 0.6 {
		t.Fatalf("score = %.3f, want >= 0.6", result.Score)
	}
}

func TestProcessHonorsIterationCap(t *testing.T) {
	client := &scriptedClient{draft: draftPython, improved: []string{improvedPython}}
	// MinImprovement 0 never plateaus on the growing iteration bonus.
	o := New(client, nil, nil, nil, Config{MaxIterations: 4, MinImprovement: 0})

	result, err := o.Process(context.Background(), codeTask())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.TotalIterations != 4 {
		t.Fatalf("iterations = %d, want cap 4", result.TotalIterations)
	}
	for i, rec := range result.Iterations {
		if rec.Index != i+1 {
			t.Fatalf("record %d has index %d", i, rec.Index)
		}
		if i == 0 && rec.Delta != 0 {
			t.Fatalf("iteration 1 delta = %.3f, want 0", rec.Delta)
		}
	}
}

func TestProcessKeepsBestAcrossRegression(t *testing.T) {
	client := &scriptedClient{
		draft:    draftPython,
		improved: []string{improvedPython, "pass"},
	}
	o := New(client, nil, nil, nil, Config{MaxIterations: 3, MinImprovement: 0.05})

	result, err := o.Process(context.Background(), codeTask())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// Iteration 2 regresses hard; the run stops there but hands back the
	// iteration 1 solution and score.
	if result.TotalIterations != 2 {
		t.Fatalf("iterations = %d, want 2", result.TotalIterations)
	}
	if result.Solution != improvedPython {
		t.Fatal("best solution was overwritten by a worse iteration")
	}
	if result.Iterations[1].Delta >= 0 {
		t.Fatalf("delta = %.3f, want negative for a regression", result.Iterations[1].Delta)
	}
	if result.Score <= result.Iterations[1].Score.Total {
		t.Fatal("result score does not track the best iteration")
	}
}

func TestProcessGenerateFailure(t *testing.T) {
	client := &scriptedClient{failGenerate: true}
	o := New(client, nil, nil, nil, DefaultConfig())

	result, err := o.Process(context.Background(), codeTask())
	if err == nil {
		t.Fatal("expected error from failed generation")
	}
	if result.TotalIterations != 0 {
		t.Fatalf("iterations = %d, want 0", result.TotalIterations)
	}
	if result.Solution != "" {
		t.Fatalf("solution = %q, want empty", result.Solution)
	}
}

// #endregion loop

// #region context

func TestPastExamplesOnlyFeedFirstIteration(t *testing.T) {
	client := &scriptedClient{draft: draftPython, improved: []string{improvedPython}}
	mem := &fakeMemory{entries: []memory.Entry{{Solution: "past winning answer"}}}
	o := New(client, mem, nil, nil, Config{MaxIterations: 3, MinImprovement: 0, PastExamples: 3})

	if _, err := o.Process(context.Background(), codeTask()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(client.generatePrompts) < 2 {
		t.Fatalf("generate calls = %d, want at least 2", len(client.generatePrompts))
	}
	if !strings.Contains(client.generatePrompts[0], "past winning answer") {
		t.Fatal("iteration 1 prompt missing past example")
	}
	for _, p := range client.generatePrompts[1:] {
		if strings.Contains(p, "past winning answer") {
			t.Fatal("later iteration prompt still carries past examples")
		}
	}
}

func TestStrictSkipsExamplesAndWriteBack(t *testing.T) {
	client := &scriptedClient{draft: draftPython, improved: []string{improvedPython}}
	mem := &fakeMemory{entries: []memory.Entry{{Solution: "past winning answer"}}}
	o := New(client, mem, nil, nil, Config{MaxIterations: 2, MinImprovement: 0.05, PastExamples: 3})

	task := codeTask()
	task.Strict = true
	task.ReferenceChunks = []string{"only this chunk"}
	result, err := o.Process(context.Background(), task)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if strings.Contains(client.generatePrompts[0], "past winning answer") {
		t.Fatal("strict run consumed past examples")
	}
	if mem.saveCalls != 0 {
		t.Fatal("strict run was written back to memory")
	}
	if !result.UsedChunks {
		t.Fatal("supplied reference chunks not used")
	}
}

func TestWriteBackOnHighScore(t *testing.T) {
	client := &scriptedClient{draft: draftPython, improved: []string{improvedPython}}
	mem := &fakeMemory{}
	o := New(client, mem, nil, nil, Config{MaxIterations: 2, MinImprovement: 0.05, PastExamples: 3})

	result, err := o.Process(context.Background(), codeTask())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if mem.saveCalls != 1 {
		t.Fatalf("save calls = %d, want 1", mem.saveCalls)
	}
	if mem.savedScore != result.Score {
		t.Fatalf("saved score %.3f != result score %.3f", mem.savedScore, result.Score)
	}
}

func TestNoWriteBackOnLowScore(t *testing.T) {
	client := &scriptedClient{draft: draftPython, improved: []string{"pass"}}
	mem := &fakeMemory{}
	o := New(client, mem, nil, nil, Config{MaxIterations: 2, MinImprovement: 0.05, PastExamples: 3})

	if _, err := o.Process(context.Background(), codeTask()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if mem.saveCalls != 0 {
		t.Fatal("low-scoring run was written back to memory")
	}
}

func TestMemoryOutageDegrades(t *testing.T) {
	client := &scriptedClient{draft: draftPython, improved: []string{improvedPython}}
	mem := &fakeMemory{retrieveErr: errors.New("db locked")}
	o := New(client, mem, nil, nil, Config{MaxIterations: 2, MinImprovement: 0.05, PastExamples: 3})

	result, err := o.Process(context.Background(), codeTask())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.TotalIterations == 0 {
		t.Fatal("run produced nothing after memory outage")
	}
}

func TestCorpusRetrievalFeedsChunks(t *testing.T) {
	client := &scriptedClient{draft: draftPython, improved: []string{improvedPython}}
	corpus := &fakeCorpus{chunks: []retrieval.ScoredChunk{
		{Chunk: retrieval.Chunk{Text: "retrieved reference text"}, Score: 0.9},
	}}
	o := New(client, nil, corpus, nil, Config{
		MaxIterations: 2, MinImprovement: 0.05, TopK: 3, UseRetrieval: true,
	})

	result, err := o.Process(context.Background(), codeTask())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !result.UsedChunks {
		t.Fatal("corpus chunks not marked as used")
	}
	if !strings.Contains(client.generatePrompts[0], "retrieved reference text") {
		t.Fatal("retrieved chunk missing from generate prompt")
	}
}

func TestAnalyticsRecorded(t *testing.T) {
	client := &scriptedClient{draft: draftPython, improved: []string{improvedPython}}
	rec := &fakeRecorder{}
	o := New(client, nil, nil, rec, Config{MaxIterations: 2, MinImprovement: 0.05})

	result, err := o.Process(context.Background(), codeTask())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(rec.recs) != 1 {
		t.Fatalf("recorded %d rows, want 1", len(rec.recs))
	}
	row := rec.recs[0]
	if row.RunID != result.RunID || row.Iterations != result.TotalIterations {
		t.Fatalf("row %+v does not match result", row)
	}
	if row.Mode != "code" {
		t.Fatalf("mode = %q, want code", row.Mode)
	}
	if row.TaskHash != memory.HashTask(result.Task) {
		t.Fatal("task hash mismatch")
	}
}

// #endregion context

// #region streaming

func collectEvents() (EventSink, *[]Event) {
	var events []Event
	return func(ev Event) error {
		events = append(events, ev)
		return nil
	}, &events
}

func TestProcessStreamEventOrder(t *testing.T) {
	client := &scriptedClient{draft: draftPython, improved: []string{improvedPython}}
	o := New(client, nil, nil, nil, Config{MaxIterations: 3, MinImprovement: 0.05})

	sink, events := collectEvents()
	result, err := o.ProcessStream(context.Background(), codeTask(), sink)
	if err != nil {
		t.Fatalf("ProcessStream: %v", err)
	}

	var order []EventType
	tokens := 0
	var streamed strings.Builder
	for _, ev := range *events {
		if ev.Type == EventToken {
			tokens++
			streamed.WriteString(ev.Token)
			continue
		}
		order = append(order, ev.Type)
	}
	if tokens == 0 {
		t.Fatal("no token events streamed")
	}
	if streamed.String() != draftPython {
		t.Fatalf("streamed tokens reassemble to %q, want the draft", streamed.String())
	}

	want := []EventType{
		EventDraftReady,
		EventImprovementStarted,
		EventImprovedReady,
		EventIterationComplete, // iteration 1
		EventIterationComplete, // iteration 2, plateau
		EventFinal,
	}
	if len(order) != len(want) {
		t.Fatalf("event order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, order[i], want[i])
		}
	}

	last := (*events)[len(*events)-1]
	if last.Type != EventFinal || last.Text != result.Solution || last.Score != result.Score {
		t.Fatalf("final event %+v does not match result", last)
	}
}

func TestProcessStreamBackgroundFailure(t *testing.T) {
	client := &scriptedClient{draft: draftPython, failCritique: true}
	o := New(client, nil, nil, nil, Config{MaxIterations: 3, MinImprovement: 0.05})

	sink, events := collectEvents()
	result, err := o.ProcessStream(context.Background(), codeTask(), sink)
	if err != nil {
		t.Fatalf("ProcessStream: %v, want graceful truncation", err)
	}

	// The consumer already holds the draft; the run finalizes around it.
	if result.Solution != draftPython {
		t.Fatalf("solution = %q, want the streamed draft", result.Solution)
	}
	if result.TotalIterations != 1 {
		t.Fatalf("iterations = %d, want 1 truncated iteration", result.TotalIterations)
	}
	if result.Iterations[0].Improved != nil {
		t.Fatal("truncated iteration has an improved output")
	}

	sawDraft, sawError, sawFinal := false, false, false
	for _, ev := range *events {
		switch ev.Type {
		case EventDraftReady:
			sawDraft = true
		case EventError:
			sawError = true
		case EventImprovedReady:
			t.Fatal("improved event after failed continuation")
		case EventFinal:
			sawFinal = true
		}
	}
	if !sawDraft || !sawError || !sawFinal {
		t.Fatalf("events draft=%v error=%v final=%v, want all", sawDraft, sawError, sawFinal)
	}
}

func TestProcessStreamSinkErrorsSwallowed(t *testing.T) {
	client := &scriptedClient{draft: draftPython, improved: []string{improvedPython}}
	o := New(client, nil, nil, nil, Config{MaxIterations: 2, MinImprovement: 0.05})

	sink := func(Event) error { return errors.New("consumer gone") }
	result, err := o.ProcessStream(context.Background(), codeTask(), sink)
	if err != nil {
		t.Fatalf("ProcessStream: %v, want sink failures swallowed", err)
	}
	if result.Solution != improvedPython {
		t.Fatal("run did not complete despite dead sink")
	}
}

// #endregion streaming
