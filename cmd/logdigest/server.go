package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/phuslu/log"
	"github.com/robfig/cron/v3"
	"github.com/tinytelemetry/logdigest/internal/httpserver"
	"golang.org/x/sync/errgroup"
)

// runServer generates reports on the configured schedule and serves the
// HTTP API until interrupted.
func runServer(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger(cfg)
	defer cleanupLogger()

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen, closeGen, err := buildGenerator(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGen()

	var apiServer *httpserver.Server
	if cfg.APIEnabled {
		apiServer = httpserver.NewServer(cfg.APIAddr, gen)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	scheduler := cron.New()
	if cfg.Schedule != "" {
		_, err := scheduler.AddFunc(cfg.Schedule, func() {
			res, err := gen.Generate(ctx)
			if err != nil {
				log.Error().Str("component", "scheduler").Err(err).Msg("scheduled report failed")
				return
			}
			if apiServer != nil {
				apiServer.Record(res)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
		}
	}
	scheduler.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	var next time.Time
	if entries := scheduler.Entries(); len(entries) > 0 {
		next = entries[0].Next
	}
	printStartupBanner(cfg, next)

	g, gctx := errgroup.WithContext(ctx)

	// A failing API server ends the run; otherwise wait for the signal handler.
	if apiServer != nil {
		g.Go(func() error {
			if err := apiServer.Wait(gctx); err != nil {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	runErr := g.Wait()
	if runErr != nil {
		log.Error().Str("component", "server").Err(runErr).Msg("server exited with error")
	}

	// Let a running scheduled report finish before returning.
	<-scheduler.Stop().Done()
	signal.Stop(sigCh)
	return runErr
}

func printStartupBanner(cfg appConfig, nextRun time.Time) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╦  ╔═╗╔═╗╔╦╗╦╔═╗╔═╗╔═╗╔╦╗
    ║  ║ ║║ ╦ ║║║║ ╦║╣ ╚═╗ ║
    ╩═╝╚═╝╚═╝═╩╝╩╚═╝╚═╝╚═╝ ╩ `)

	var lines []string
	lines = append(lines, "", logo, "    "+dim.Render("v"+version), "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator, "")

	lines = append(lines, bold.Render("    Collection"), "")
	lines = append(lines, fmt.Sprintf("    %s  Host           %s", check, cyan.Render(cfg.Host)))
	lines = append(lines, fmt.Sprintf("    %s  Source         %s", check, dim.Render(cfg.Source)))
	lines = append(lines, fmt.Sprintf("    %s  Channels       %s", check, dim.Render(strings.Join(cfg.Channels, ", "))))
	lines = append(lines, fmt.Sprintf("    %s  Summary Engine %s", check, dim.Render(cfg.SummaryEngine)))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Output"), "")
	lines = append(lines, fmt.Sprintf("    %s  Reports        %s", check, dim.Render(shortenPath(cfg.ReportsRoot))))
	if cfg.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", dot, dim.Render("disabled")))
	}
	if !nextRun.IsZero() {
		lines = append(lines, fmt.Sprintf("    %s  Next Report    %s", check, dim.Render(nextRun.Format("Mon Jan 2 15:04"))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Schedule       %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"), "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "", separator, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"), "")

	fmt.Println(strings.Join(lines, "\n"))
}
