package main

import (
	"flag"
	"io"
	"log/slog"
	"strings"
)

type simConfig struct {
	ScenarioFile string
	JSONOutput   bool
	OutputFile   string
	Verbose      bool
}

func parseFlags(args []string) (simConfig, error) {
	var cfg simConfig
	fs := flag.NewFlagSet("clustergraph-sim", flag.ContinueOnError)
	fs.StringVar(&cfg.ScenarioFile, "scenario", "", "Path to scenario YAML or JSON file")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "Output results as JSON")
	fs.StringVar(&cfg.OutputFile, "out", "", "Write output to file instead of stdout")
	fs.BoolVar(&cfg.Verbose, "v", false, "Log reconciliation passes to stderr")
	if err := fs.Parse(args); err != nil {
		return simConfig{}, err
	}
	cfg.ScenarioFile = strings.TrimSpace(cfg.ScenarioFile)
	return cfg, nil
}

func (c simConfig) logger(w io.Writer) *slog.Logger {
	if !c.Verbose {
		w = io.Discard
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
