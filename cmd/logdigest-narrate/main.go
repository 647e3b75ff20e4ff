package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tinytelemetry/logdigest/internal/narrate"
	"github.com/tinytelemetry/logdigest/internal/report"
)

func main() {
	var configPath string
	var watch, printOnly bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/logdigest/config.yml)")
	flag.BoolVar(&watch, "watch", false, "keep running and narrate every new report")
	flag.BoolVar(&printOnly, "print", false, "print the summary text instead of running the speech command")
	flag.Parse()

	cfg, err := loadCLIConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	configureLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, watch, buildNarrator(cfg, printOnly)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildNarrator(cfg cliConfig, printOnly bool) narrate.Narrator {
	if printOnly {
		return narrate.NarratorFunc(func(_ context.Context, text string) error {
			_, err := fmt.Println(text)
			return err
		})
	}
	return narrate.CommandNarrator{
		Command: cfg.NarrateCmd,
		Args:    cfg.NarrateArgs,
		Output:  cfg.NarrateOutput,
	}
}

func run(ctx context.Context, cfg cliConfig, watch bool, n narrate.Narrator) error {
	dir := report.Dir(cfg.ReportsRoot, cfg.Host)
	if watch {
		return narrate.Watch(ctx, dir, cfg.Host, n)
	}

	path, err := narrate.SpeakLatest(ctx, dir, cfg.Host, n)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Println("No reports found to read aloud.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Spoke summary of %s\n", path)
	return nil
}
