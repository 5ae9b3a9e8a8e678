package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rmax-ai/clustergraph/pkg/simulation"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	var scenario simulation.Scenario
	if cfg.ScenarioFile != "" {
		scenario, err = simulation.LoadScenario(cfg.ScenarioFile)
		if err != nil {
			log.Fatalf("Failed to load scenario: %v", err)
		}
	} else {
		fmt.Fprintln(os.Stderr, "No scenario file provided, running default demo scenario...")
		scenario = simulation.DefaultScenario()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := simulation.RunScenario(ctx, scenario, cfg.logger(os.Stderr))

	writeReport(result, cfg.JSONOutput, cfg.OutputFile)

	if !result.Success {
		os.Exit(1)
	}
}

func writeReport(res simulation.SimulationResult, jsonFmt bool, filePath string) {
	var output []byte
	var err error

	if jsonFmt {
		output, err = json.MarshalIndent(res, "", "  ")
	} else {
		var buf bytes.Buffer
		buf.WriteString(fmt.Sprintf("\n--- Simulation Report: %s ---\n", res.ScenarioName))
		buf.WriteString(fmt.Sprintf("Duration: %s\n", res.Duration))
		buf.WriteString(fmt.Sprintf("Steps: %d | Final nodes: %d | Final edges: %d\n",
			len(res.Steps), res.FinalNodes, res.FinalEdges))

		for _, step := range res.Steps {
			status := "FAIL"
			if step.Passed {
				status = "PASS"
			}
			buf.WriteString(fmt.Sprintf("\n[%s] %s\n", status, step.Step))
			if len(step.Created) > 0 {
				buf.WriteString(fmt.Sprintf("  created: %s\n", strings.Join(step.Created, ", ")))
			}
			if len(step.Removed) > 0 {
				buf.WriteString(fmt.Sprintf("  removed: %s\n", strings.Join(step.Removed, ", ")))
			}
			if len(step.PlaceholdersCreated) > 0 {
				buf.WriteString(fmt.Sprintf("  placeholders: %s\n", strings.Join(step.PlaceholdersCreated, ", ")))
			}
			if step.Error != "" {
				buf.WriteString(fmt.Sprintf("  error: %s\n", step.Error))
			}
			for _, c := range step.Checks {
				mark := "ok"
				if !c.Passed {
					mark = "MISMATCH"
				}
				buf.WriteString(fmt.Sprintf("  %s: expected %s, got %s (%s)\n", c.Metric, c.Expected, c.Actual, mark))
			}
		}
		output = buf.Bytes()
	}

	if err != nil {
		log.Fatalf("Failed to marshal report: %v", err)
	}

	if filePath != "" {
		if err := os.WriteFile(filePath, output, 0644); err != nil {
			log.Fatalf("Failed to write report to %s: %v", filePath, err)
		}
		fmt.Printf("Report written to %s\n", filePath)
	} else {
		fmt.Println(string(output))
	}
}
