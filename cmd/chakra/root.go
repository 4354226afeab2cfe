package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/AP2611/Chakra/internal/analytics"
	"github.com/AP2611/Chakra/internal/completion"
	"github.com/AP2611/Chakra/internal/config"
	"github.com/AP2611/Chakra/internal/memory"
	"github.com/AP2611/Chakra/internal/orchestrator"
	"github.com/AP2611/Chakra/internal/retrieval"
)

// #region root
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "chakra",
		Short:         "Recursive refinement controller: generate, critique, improve",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "chakra.yaml", "path to YAML config")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newIngestCmd(&configPath))
	root.AddCommand(newStatsCmd(&configPath))
	return root
}

// #endregion root

// #region run
func newRunCmd(configPath *string) *cobra.Command {
	var (
		isCode    bool
		strict    bool
		useRAG    bool
		stream    bool
		extra     string
		maxIter   int
		minImprov float64
	)

	cmd := &cobra.Command{
		Use:   "run <task...>",
		Short: "Run a task through the refinement loop",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if maxIter > 0 {
				cfg.MaxIterations = maxIter
			}
			if cmd.Flags().Changed("min-improvement") {
				cfg.MinImprovement = minImprov
			}

			orch, store, err := buildOrchestrator(cfg, useRAG || strict)
			if err != nil {
				return err
			}
			defer store.Close()

			task := orchestrator.Task{
				Description: strings.Join(args, " "),
				Context:     extra,
				IsCode:      isCode,
				Strict:      strict,
			}

			if stream {
				return runStreaming(cmd, orch, task)
			}

			result, err := orch.Process(cmd.Context(), task)
			if err != nil {
				return err
			}
			printResult(cmd, result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&isCode, "code", true, "expect a code solution")
	cmd.Flags().BoolVar(&strict, "strict", false, "answer only from ingested documents")
	cmd.Flags().BoolVar(&useRAG, "rag", false, "retrieve document context")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream the first draft live")
	cmd.Flags().StringVar(&extra, "context", "", "additional task context")
	cmd.Flags().IntVar(&maxIter, "iterations", 0, "override max iterations")
	cmd.Flags().Float64Var(&minImprov, "min-improvement", 0, "override plateau threshold")
	return cmd
}

func runStreaming(cmd *cobra.Command, orch *orchestrator.Orchestrator, task orchestrator.Task) error {
	tokenColor := color.New(color.FgCyan)
	noteColor := color.New(color.FgYellow)

	result, err := orch.ProcessStream(cmd.Context(), task, func(ev orchestrator.Event) error {
		switch ev.Type {
		case orchestrator.EventToken:
			tokenColor.Fprint(cmd.OutOrStdout(), ev.Token)
		case orchestrator.EventDraftReady:
			fmt.Fprintln(cmd.OutOrStdout())
			noteColor.Fprintln(cmd.OutOrStdout(), "-- draft ready, refining in background --")
		case orchestrator.EventImprovedReady:
			noteColor.Fprintf(cmd.OutOrStdout(), "-- improved (iteration %d) --\n", ev.Iteration)
		case orchestrator.EventIterationComplete:
			noteColor.Fprintf(cmd.OutOrStdout(), "-- iteration %d complete: score %.3f --\n", ev.Iteration, ev.Score)
		case orchestrator.EventError:
			color.New(color.FgRed).Fprintf(cmd.OutOrStdout(), "-- iteration %d error: %s --\n", ev.Iteration, ev.Err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	printResult(cmd, result)
	return nil
}

func printResult(cmd *cobra.Command, result orchestrator.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%s\n\n", result.Solution)
	fmt.Fprintf(out, "score=%.3f iterations=%d", result.Score, result.TotalIterations)
	if result.UsedChunks {
		fmt.Fprintf(out, " chunks=%d", len(result.Chunks))
	}
	fmt.Fprintln(out)
	for _, it := range result.Iterations {
		fmt.Fprintf(out, "  iteration %d: score=%.3f delta=%+.3f\n", it.Index, it.Score.Total, it.Delta)
	}
}

// #endregion run

// #region ingest
func newIngestCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file...>",
		Short: "Copy documents into the corpus directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.DocumentsDir, 0o755); err != nil {
				return fmt.Errorf("create documents dir: %w", err)
			}
			for _, src := range args {
				data, err := os.ReadFile(src)
				if err != nil {
					return fmt.Errorf("read %s: %w", src, err)
				}
				dst := filepath.Join(cfg.DocumentsDir, filepath.Base(src))
				if err := os.WriteFile(dst, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", dst, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ingested %s\n", dst)
			}
			return nil
		},
	}
}

// #endregion ingest

// #region stats
func newStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate run statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			store, err := memory.NewStore(cfg.MemoryDB)
			if err != nil {
				return err
			}
			defer store.Close()
			tracker, err := analytics.NewTracker(store.DB())
			if err != nil {
				return err
			}
			summary, err := tracker.Summarize(100)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "runs=%d avg_score=%.3f avg_iterations=%.1f\n",
				summary.Runs, summary.AvgScore, summary.AvgIterations)
			return nil
		},
	}
}

// #endregion stats

// #region wiring
// buildOrchestrator wires the completion client, memory store, analytics and
// document corpus into one orchestrator.
func buildOrchestrator(cfg config.Config, withRetrieval bool) (*orchestrator.Orchestrator, *memory.Store, error) {
	store, err := memory.NewStore(cfg.MemoryDB)
	if err != nil {
		return nil, nil, err
	}
	tracker, err := analytics.NewTracker(store.DB())
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	corpus := retrieval.NewCorpus(retrieval.DefaultConfig())
	if withRetrieval {
		if err := loadDocuments(corpus, cfg.DocumentsDir); err != nil {
			store.Close()
			return nil, nil, err
		}
	}

	client := completion.NewClient(cfg.OllamaURL, cfg.Model, &completion.Options{
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		TopK:        cfg.SampleTopK,
		NumCtx:      cfg.NumCtx,
	}, cfg.RequestTimeout)

	orch := orchestrator.New(client, store, corpus, tracker, orchestrator.Config{
		MaxIterations:  cfg.MaxIterations,
		MinImprovement: cfg.MinImprovement,
		TopK:           cfg.TopK,
		PastExamples:   cfg.PastExamples,
		UseRetrieval:   withRetrieval,
	})
	return orch, store, nil
}

func loadDocuments(corpus *retrieval.Corpus, dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return fmt.Errorf("scan documents dir: %w", err)
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read document %s: %w", path, err)
		}
		corpus.AddDocument(string(data), filepath.Base(path))
	}
	return nil
}

// #endregion wiring
