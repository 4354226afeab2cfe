package orchestrator

// #region imports
import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AP2611/Chakra/internal/analytics"
	"github.com/AP2611/Chakra/internal/eval"
	"github.com/AP2611/Chakra/internal/memory"
	"github.com/AP2611/Chakra/internal/retrieval"
	"github.com/AP2611/Chakra/internal/stage"
)

// #endregion

// #region orchestrator-struct

// Orchestrator drives the generate → critique → improve → evaluate loop for
// one task at a time, tracks the best result across iterations and decides
// when improvement has plateaued. All collaborators are injected; one
// Orchestrator instance owns its run state for the duration of a run.
type Orchestrator struct {
	generator *stage.Generator
	critic    *stage.Critic
	improver  *stage.Improver
	memory    MemoryStore // nil = no past-solution memory
	corpus    ChunkSource // nil = no document corpus
	tracker   RunRecorder // nil = no analytics
	config    Config
}

// #endregion

// #region constructor

// New creates a fully wired orchestrator. memory, corpus and tracker may be
// nil; the run degrades gracefully without them.
func New(client stage.Completer, mem MemoryStore, corpus ChunkSource, tracker RunRecorder, config Config) *Orchestrator {
	if config.MaxIterations < 1 {
		config.MaxIterations = 1
	}
	return &Orchestrator{
		generator: stage.NewGenerator(client),
		critic:    stage.NewCritic(client),
		improver:  stage.NewImprover(client),
		memory:    mem,
		corpus:    corpus,
		tracker:   tracker,
		config:    config,
	}
}

// #endregion

// #region process

// Process runs the refinement loop to completion and returns the best
// result. A stage failure aborts the current iteration and is returned;
// already-recorded iterations stay intact in the partial result.
func (o *Orchestrator) Process(ctx context.Context, task Task) (Result, error) {
	return o.run(ctx, task, nil)
}

// ProcessStream runs the loop in streaming mode: iteration 1's draft is
// streamed token by token and handed to the consumer as soon as it
// completes, while critique/improve/evaluate continue in the background.
// Event emission is best-effort; sink errors are logged and swallowed.
func (o *Orchestrator) ProcessStream(ctx context.Context, task Task, sink EventSink) (Result, error) {
	return o.run(ctx, task, sink)
}

// #endregion

// #region run

func (o *Orchestrator) run(ctx context.Context, task Task, sink EventSink) (Result, error) {
	started := time.Now()
	result := Result{
		RunID: uuid.New().String(),
		Task:  task.Description,
	}

	chunks, pastExamples := o.retrieveContext(task)
	result.UsedChunks = len(chunks) > 0
	result.Chunks = chunks

	var runErr error
	prevScore := 0.0
	for n := 1; n <= o.config.MaxIterations; n++ {
		examples := pastExamples
		if n > 1 {
			examples = nil
		}

		var rec IterationRecord
		var err error
		if sink != nil && n == 1 {
			rec, err = o.iterateStreaming(ctx, task, chunks, examples, sink)
		} else {
			rec, err = o.iterate(ctx, task, chunks, examples, n)
		}
		if err != nil {
			// The failed iteration is not recorded; history stays intact.
			o.emit(sink, Event{Type: EventError, Iteration: n, Err: err.Error()})
			runErr = err
			break
		}

		rec.Delta = 0.0
		if n > 1 {
			rec.Delta = rec.Score.Total - prevScore
		}
		result.Iterations = append(result.Iterations, rec)

		if rec.Score.Total > result.Score {
			result.Score = rec.Score.Total
			result.Solution = rec.Solution()
		}

		// A truncated iteration (background continuation failed) carries no
		// score, so no plateau decision is possible; stop and finalize.
		if rec.Improved == nil {
			break
		}

		o.emit(sink, Event{Type: EventIterationComplete, Iteration: n, Score: rec.Score.Total})

		if n >= 2 && rec.Score.Total-prevScore < o.config.MinImprovement {
			break
		}
		prevScore = rec.Score.Total
	}
	result.TotalIterations = len(result.Iterations)

	// A run whose only iteration was truncated still hands back the draft.
	if result.Solution == "" && result.TotalIterations > 0 {
		result.Solution = result.Iterations[result.TotalIterations-1].Solution()
	}

	o.finalize(task, &result, started)
	o.emit(sink, Event{Type: EventFinal, Text: result.Solution, Score: result.Score})

	if runErr != nil {
		return result, fmt.Errorf("run %s: %w", result.RunID, runErr)
	}
	return result, nil
}

// #endregion

// #region retrieving

// retrieveContext fetches reference chunks and past similar solutions.
// The two reads are independent and run in parallel. Memory outages
// degrade to an empty example list.
func (o *Orchestrator) retrieveContext(task Task) (chunks, pastExamples []string) {
	if len(task.ReferenceChunks) > 0 {
		chunks = task.ReferenceChunks
	}

	var wg sync.WaitGroup

	if chunks == nil && o.corpus != nil && (o.config.UseRetrieval || task.Strict) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			chunks = retrieval.Texts(o.corpus.Retrieve(task.Description, o.config.TopK))
		}()
	}

	// Past examples never feed strict-grounding runs.
	if o.memory != nil && !task.Strict && o.config.PastExamples > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entries, err := o.memory.RetrieveSimilar(task.Description, o.config.PastExamples)
			if err != nil {
				log.Printf("[ORCH] memory unavailable, continuing without past examples: %v", err)
				return
			}
			for _, e := range entries {
				pastExamples = append(pastExamples, e.Solution)
			}
		}()
	}

	wg.Wait()
	return chunks, pastExamples
}

// #endregion

// #region iterate

// iterate runs one full Generate → Critique → Improve → Evaluate pass.
func (o *Orchestrator) iterate(ctx context.Context, task Task, chunks, examples []string, n int) (IterationRecord, error) {
	mode := task.Mode()

	draft, err := o.generator.Run(ctx, stage.GenerateContext{
		Task:         task.Description,
		Extra:        task.Context,
		Chunks:       chunks,
		PastExamples: examples,
		Mode:         mode,
	})
	if err != nil {
		return IterationRecord{}, err
	}
	if !mode.IsCode() {
		draft.Text = stripCodeFences(draft.Text)
	}

	rec := IterationRecord{Index: n, Draft: &draft}
	if err := o.continueIteration(ctx, task, chunks, &rec); err != nil {
		return IterationRecord{}, err
	}
	return rec, nil
}

// continueIteration completes a record holding a draft: critique, improve,
// evaluate. Shared between the synchronous path and the detached
// continuation of streaming mode.
func (o *Orchestrator) continueIteration(ctx context.Context, task Task, chunks []string, rec *IterationRecord) error {
	mode := task.Mode()

	critique, err := o.critic.Run(ctx, stage.CritiqueContext{
		Task:   task.Description,
		Draft:  rec.Draft.Text,
		Chunks: chunks,
		Mode:   mode,
	})
	if err != nil {
		return err
	}
	rec.Critique = &critique

	improved, err := o.improver.Run(ctx, stage.ImproveContext{
		Task:     task.Description,
		Draft:    rec.Draft.Text,
		Critique: critique.Text,
		Chunks:   chunks,
		Mode:     mode,
	})
	if err != nil {
		return err
	}
	if !mode.IsCode() {
		improved.Text = stripCodeFences(improved.Text)
	}
	rec.Improved = &improved

	rec.Score = eval.Evaluate(improved.Text, task.Description, mode.IsCode(), chunks, rec.Index)
	return nil
}

// #endregion

// #region iterate-streaming

// iterateStreaming handles iteration 1 under a live consumer: the draft is
// streamed token by token, handed over as soon as it completes, and the
// rest of the iteration is detached into a background continuation. The
// continuation is explicitly joined before this method returns, so the
// early draft hand-off never races with the run's completion; a failure
// inside it becomes an Error event and leaves a truncated record instead
// of crashing the run.
func (o *Orchestrator) iterateStreaming(ctx context.Context, task Task, chunks, examples []string, sink EventSink) (IterationRecord, error) {
	mode := task.Mode()

	tokens := make(chan string, 64)
	var forward sync.WaitGroup
	forward.Add(1)
	go func() {
		defer forward.Done()
		for tok := range tokens {
			o.emit(sink, Event{Type: EventToken, Iteration: 1, Token: tok})
		}
	}()

	draft, err := o.generator.RunStream(ctx, stage.GenerateContext{
		Task:         task.Description,
		Extra:        task.Context,
		Chunks:       chunks,
		PastExamples: examples,
		Mode:         mode,
	}, tokens)
	close(tokens)
	forward.Wait()
	if err != nil {
		return IterationRecord{}, err
	}
	if !mode.IsCode() {
		draft.Text = stripCodeFences(draft.Text)
	}

	// The consumer has a usable first response from here on.
	o.emit(sink, Event{Type: EventDraftReady, Iteration: 1, Text: draft.Text})

	rec := IterationRecord{Index: 1, Draft: &draft}
	done := make(chan error, 1)
	go func() {
		o.emit(sink, Event{Type: EventImprovementStarted, Iteration: 1})
		if err := o.continueIteration(ctx, task, chunks, &rec); err != nil {
			done <- err
			return
		}
		o.emit(sink, Event{Type: EventImprovedReady, Iteration: 1, Text: rec.Improved.Text})
		done <- nil
	}()

	// Join the detached continuation before any subsequent iteration.
	if err := <-done; err != nil {
		o.emit(sink, Event{Type: EventError, Iteration: 1, Err: err.Error()})
		log.Printf("[ORCH] background continuation failed: %v", err)
	}
	return rec, nil
}

// #endregion

// #region finalize

// finalize writes the best solution back to memory and records analytics.
// Both are best-effort; strict-grounding answers are never cached as
// general-purpose solutions.
func (o *Orchestrator) finalize(task Task, result *Result, started time.Time) {
	if o.memory != nil && result.Score > 0.6 && !task.Strict {
		err := o.memory.Save(task.Description, result.Solution, result.Score, memory.Meta{
			IsCode:     task.IsCode,
			UsedChunks: result.UsedChunks,
			Iterations: result.TotalIterations,
		})
		if err != nil {
			log.Printf("[ORCH] memory write-back skipped: %v", err)
		}
	}

	if o.tracker != nil {
		err := o.tracker.RecordRun(analytics.RunRecord{
			RunID:      result.RunID,
			TaskHash:   memory.HashTask(task.Description),
			Mode:       task.Mode().String(),
			FinalScore: result.Score,
			Iterations: result.TotalIterations,
			UsedChunks: result.UsedChunks,
			Duration:   time.Since(started),
		})
		if err != nil {
			log.Printf("[ORCH] analytics skipped: %v", err)
		}
	}

	log.Printf("[ORCH] run %s done: score=%.3f iterations=%d chunks=%v",
		result.RunID, result.Score, result.TotalIterations, result.UsedChunks)
}

// #endregion

// #region emit

// emit forwards an event to the sink, if any. Failures to send mean the
// consumer is gone; they are logged and swallowed.
func (o *Orchestrator) emit(sink EventSink, ev Event) {
	if sink == nil {
		return
	}
	if err := sink(ev); err != nil {
		log.Printf("[ORCH] drop %s event: %v", ev.Type, err)
	}
}

// #endregion

// #region fences

var fenceLine = regexp.MustCompile("(?m)^```[a-zA-Z0-9_+-]*[ \t]*$\n?")

// stripCodeFences removes code-fence markers from prose outputs. The fenced
// content itself is kept as plain text.
func stripCodeFences(text string) string {
	return fenceLine.ReplaceAllString(text, "")
}

// #endregion
