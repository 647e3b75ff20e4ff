package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/phuslu/log"
	"github.com/spf13/viper"
)

const defaultNarrateCommand = "espeak-ng"

// cliConfig holds only narration-relevant configuration. It reads the same
// file and environment as logdigest so both agree on host and reports-root.
type cliConfig struct {
	Host          string   `mapstructure:"host"`
	ReportsRoot   string   `mapstructure:"reports-root"`
	NarrateCmd    string   `mapstructure:"narrate-command"`
	NarrateArgs   []string `mapstructure:"narrate-args"`
	NarrateOutput string   `mapstructure:"narrate-output"`
	LogLevel      string   `mapstructure:"log-level"`
}

func loadCLIConfig(configPath string) (cliConfig, error) {
	var cfg cliConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}

	v := viper.New()
	v.SetEnvPrefix("LOGDIGEST")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("host", hostname)
	v.SetDefault("reports-root", filepath.Join(home, ".local", "share", "logdigest", "reports"))
	v.SetDefault("narrate-command", defaultNarrateCommand)
	v.SetDefault("narrate-args", []string{"-w", "{output}", "{text}"})
	v.SetDefault("narrate-output", filepath.Join(home, ".local", "share", "logdigest", "spoken_summary.wav"))
	v.SetDefault("log-level", "info")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "logdigest", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	for _, p := range []*string{&cfg.ReportsRoot, &cfg.NarrateOutput} {
		if strings.HasPrefix(*p, "~/") {
			*p = filepath.Join(home, (*p)[2:])
		}
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return cfg, fmt.Errorf("invalid host: empty")
	}
	if strings.TrimSpace(cfg.NarrateCmd) == "" {
		return cfg, fmt.Errorf("invalid narrate-command: empty")
	}
	return cfg, nil
}

func configureLogger(level string) {
	log.DefaultLogger = log.Logger{
		Level:  log.ParseLevel(level),
		Writer: &log.ConsoleWriter{Writer: os.Stderr, ColorOutput: log.IsTerminal(os.Stderr.Fd())},
	}
}
