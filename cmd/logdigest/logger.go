package main

import (
	"os"

	"github.com/phuslu/log"
)

// configureRuntimeLogger points the global logger at log-file, or at a
// console writer on stderr when no file is configured.
func configureRuntimeLogger(cfg appConfig) func() {
	level := log.ParseLevel(cfg.LogLevel)

	if cfg.LogFile == "" {
		log.DefaultLogger = log.Logger{
			Level:  level,
			Writer: &log.ConsoleWriter{Writer: os.Stderr, ColorOutput: log.IsTerminal(os.Stderr.Fd())},
		}
		return func() {}
	}

	fw := &log.FileWriter{
		Filename:     cfg.LogFile,
		FileMode:     0o644,
		MaxSize:      50 * 1024 * 1024,
		MaxBackups:   7,
		EnsureFolder: true,
		LocalTime:    true,
	}
	log.DefaultLogger = log.Logger{Level: level, Writer: fw}
	return func() {
		_ = fw.Close()
	}
}
