package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/logdigest/internal/digest"
)

// runOnce generates a single report and prints where it landed.
func runOnce(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger(cfg)
	defer cleanupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen, closeGen, err := buildGenerator(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGen()

	res, err := gen.Generate(ctx)
	if err != nil {
		return err
	}
	fmt.Println(renderRunSummary(cfg, res))
	return nil
}

func renderRunSummary(cfg appConfig, res digest.Result) string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	check := green.Render("●")
	cross := red.Render("●")

	unavailable := make(map[string]bool, len(res.Unavailable))
	for _, ch := range res.Unavailable {
		unavailable[ch.String()] = true
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("    %s  Report         %s", check, cyan.Render(shortenPath(res.Path))))
	for _, s := range res.Report.Sections {
		name := s.Channel.String()
		if unavailable[name] {
			lines = append(lines, fmt.Sprintf("    %s  %-14s %s", cross, name, red.Render("unavailable")))
			continue
		}
		detail := fmt.Sprintf("%d recent events", len(s.Recent))
		if s.Skipped > 0 {
			detail += fmt.Sprintf(", %d skipped", s.Skipped)
		}
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, name, dim.Render(detail)))
	}
	lines = append(lines, fmt.Sprintf("    %s  Run            %s", check, dim.Render(res.RunID)))
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	}
	return strings.Join(lines, "\n")
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
