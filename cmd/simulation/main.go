package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"servicelines-be/internal/pkg/logger"
	"servicelines-be/pkg/chat/thread"
	"servicelines-be/pkg/pipeline"
	"servicelines-be/pkg/pipeline/mock"
	"servicelines-be/pkg/workflow/orchestrator"

	"github.com/fatih/color"
)

type historyPrinter struct{}

func (historyPrinter) RecordHistory(_ context.Context, item thread.HistoryItem) error {
	color.Magenta("  history: %q (%d classes)", item.Query, len(item.ServiceClasses))
	return nil
}

func main() {
	query := flag.String("query", "repair pumps", "query to classify")
	regen := flag.String("regenerate", "0", "comma-separated item indices to regenerate after the run (empty to skip)")
	instruction := flag.String("instruction", "make it shorter", "regeneration instruction")
	delay := flag.Duration("delay", 300*time.Millisecond, "simulated backend latency per call")
	pacing := flag.Duration("pacing", orchestrator.DefaultRevealPacing, "delay before each revealed service class")
	flag.Parse()

	color.Cyan("=== Service-line classification simulation ===")
	color.Cyan("Query: %s", *query)

	orch := orchestrator.New(mock.NewClient(*delay), historyPrinter{}, logger.NewNopLogger(), orchestrator.Config{RevealPacing: *pacing},
		orchestrator.ListenerFunc(printUpdate))

	ctx := context.Background()
	if err := orch.Run(ctx, *query); err != nil {
		color.Red("Run failed: %v", err)
		os.Exit(1)
	}
	printResults(orch.State())

	indices, err := parseIndices(*regen)
	if err != nil {
		color.Red("Invalid -regenerate: %v", err)
		os.Exit(2)
	}
	if len(indices) == 0 {
		return
	}

	color.Yellow("\nRegenerating %v with %q", indices, *instruction)
	report, err := orch.RunRegeneration(ctx, indices, *instruction)
	if err != nil {
		color.Red("Regeneration rejected: %v", err)
		os.Exit(1)
	}
	for _, f := range report.Failures {
		color.Red("  item %d failed: %v", f.Index, f.Err)
	}
	color.Green("Version %d: %s", report.VersionIndex+1, report.Query)
	printResults(orch.State())
}

func printUpdate(u orchestrator.Update) {
	switch u.Kind {
	case orchestrator.KindStageCompleted:
		if u.Stage >= 0 && u.Stage < len(pipeline.Stages) {
			color.Green("✓ stage %s", pipeline.Stages[u.Stage])
		}
	case orchestrator.KindItemRevealed:
		cls := u.State.Run.ServiceClasses[u.Index]
		fmt.Printf("  + [%d] %s %s (%s)\n", u.Index, cls.Class, cls.Kltxt, cls.Type)
	case orchestrator.KindItemGenerating, orchestrator.KindItemRegenerating:
		fmt.Printf("  … generating text for item %d\n", u.Index)
	case orchestrator.KindRunFailed:
		color.Red("✗ %s", u.State.LastError)
	case orchestrator.KindVersionCreated:
		color.Blue("  saved version %d of %d", u.Index+1, u.State.VersionCount)
	}
}

func printResults(state orchestrator.State) {
	color.Yellow("\nResults (%d items)", len(state.Run.ServiceClasses))
	for i, cls := range state.Run.ServiceClasses {
		fmt.Printf("[%d] %s %s\n", i, cls.Class, cls.Kltxt)
		gen := state.Run.TextGenerations[i]
		if gen == nil {
			continue
		}
		fmt.Printf("    new:      %s\n", gen.New)
		for _, svc := range gen.ExistingServices {
			fmt.Printf("    existing: %s %s (%.2f, %s)\n", svc.SmNo, svc.Text, svc.Score, svc.Confidence)
		}
	}
}

func parseIndices(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
