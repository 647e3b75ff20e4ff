package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"github.com/tinytelemetry/logdigest/internal/digest"
	"github.com/tinytelemetry/logdigest/internal/eventsource"
	"github.com/tinytelemetry/logdigest/internal/model"
)

const (
	defaultSource         = "journal"
	defaultBatchSize      = model.DefaultBatchSize
	defaultOnSourceError  = "banner"
	defaultWorkers        = 1
	defaultSummaryEngine  = "memory"
	defaultOpenRetries    = 2
	defaultRetryBackoff   = 500 * time.Millisecond
	defaultKeepReports    = 0 // 0 = keep all
	defaultAPIAddr        = "127.0.0.1:3000"
	defaultSchedule       = "0 7 * * *"
	defaultLogLevel       = "info"
	defaultCloudWatchRate = 5.0
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Host           string   `mapstructure:"host" yaml:"host" validate:"required,excludesall=/\\"`
	ReportsRoot    string   `mapstructure:"reports-root" yaml:"reports-root" validate:"required"`
	Channels       []string `mapstructure:"channels" yaml:"channels" validate:"min=1,dive,required"`
	Horizons       []int    `mapstructure:"horizons" yaml:"horizons" validate:"len=3,dive,gt=0"`
	Source         string   `mapstructure:"source" yaml:"source" validate:"oneof=file journal cloudwatch"`
	SourceDir      string   `mapstructure:"source-dir" yaml:"source-dir" validate:"required_if=Source file"`
	JournalCommand string   `mapstructure:"journal-command" yaml:"journal-command"`
	BatchSize      int      `mapstructure:"batch-size" yaml:"batch-size" validate:"gt=0"`
	OnSourceError  string   `mapstructure:"on-source-error" yaml:"on-source-error" validate:"oneof=banner abort"`
	Parallel       bool     `mapstructure:"parallel" yaml:"parallel"`
	Workers        int      `mapstructure:"workers" yaml:"workers" validate:"gte=1"`
	SummaryEngine  string   `mapstructure:"summary-engine" yaml:"summary-engine" validate:"oneof=memory duckdb"`

	OpenRetries  int           `mapstructure:"open-retries" yaml:"open-retries" validate:"gte=0,lte=10"`
	RetryBackoff time.Duration `mapstructure:"retry-backoff" yaml:"retry-backoff" validate:"gte=0"`
	KeepReports  int           `mapstructure:"keep-reports" yaml:"keep-reports" validate:"gte=0"`

	APIEnabled bool   `mapstructure:"api-enabled" yaml:"api-enabled"`
	APIAddr    string `mapstructure:"api-addr" yaml:"api-addr" validate:"required_if=APIEnabled true,omitempty,hostname_port"`
	Schedule   string `mapstructure:"schedule" yaml:"schedule"`

	LogLevel string `mapstructure:"log-level" yaml:"log-level" validate:"oneof=trace debug info warn error"`
	LogFile  string `mapstructure:"log-file" yaml:"log-file"`

	CloudWatchRegion       string            `mapstructure:"cloudwatch-region" yaml:"cloudwatch-region"`
	CloudWatchProfile      string            `mapstructure:"cloudwatch-profile" yaml:"cloudwatch-profile"`
	CloudWatchGroups       map[string]string `mapstructure:"cloudwatch-groups" yaml:"cloudwatch-groups" validate:"required_if=Source cloudwatch"`
	CloudWatchRate         float64           `mapstructure:"cloudwatch-rate" yaml:"cloudwatch-rate" validate:"gte=0"`
	CloudWatchSeverityPath string            `mapstructure:"cloudwatch-severity-path" yaml:"cloudwatch-severity-path"`
	CloudWatchSourcePath   string            `mapstructure:"cloudwatch-source-path" yaml:"cloudwatch-source-path"`
	CloudWatchEventIDPath  string            `mapstructure:"cloudwatch-event-id-path" yaml:"cloudwatch-event-id-path"`
	CloudWatchMessagePath  string            `mapstructure:"cloudwatch-message-path" yaml:"cloudwatch-message-path"`

	ConfigPath string `mapstructure:"-" yaml:"-"` // not from config file
}

// channels returns the configured channels in order.
func (c appConfig) channels() ([]model.Channel, error) {
	return model.ParseChannels(c.Channels)
}

// longestHorizon returns the widest window, used as the remote lookback.
func (c appConfig) longestHorizon() time.Duration {
	longest := 0
	for _, h := range c.Horizons {
		if h > longest {
			longest = h
		}
	}
	return time.Duration(longest) * time.Hour
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

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

	channelNames := make([]string, 0, len(model.DefaultChannels))
	for _, ch := range model.DefaultChannels {
		channelNames = append(channelNames, ch.String())
	}

	v.SetDefault("host", hostname)
	v.SetDefault("reports-root", filepath.Join(home, ".local", "share", "logdigest", "reports"))
	v.SetDefault("channels", channelNames)
	v.SetDefault("horizons", model.DefaultHorizons)
	v.SetDefault("source", defaultSource)
	v.SetDefault("source-dir", "")
	v.SetDefault("journal-command", eventsource.DefaultJournalCommand)
	v.SetDefault("batch-size", defaultBatchSize)
	v.SetDefault("on-source-error", defaultOnSourceError)
	v.SetDefault("parallel", false)
	v.SetDefault("workers", defaultWorkers)
	v.SetDefault("summary-engine", defaultSummaryEngine)
	v.SetDefault("open-retries", defaultOpenRetries)
	v.SetDefault("retry-backoff", defaultRetryBackoff)
	v.SetDefault("keep-reports", defaultKeepReports)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-addr", defaultAPIAddr)
	v.SetDefault("schedule", defaultSchedule)
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("log-file", "")
	v.SetDefault("cloudwatch-region", "")
	v.SetDefault("cloudwatch-profile", "")
	v.SetDefault("cloudwatch-rate", defaultCloudWatchRate)

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
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		cfg.ConfigPath = ""
	}

	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))
	cfg.OnSourceError = strings.ToLower(strings.TrimSpace(cfg.OnSourceError))
	cfg.SummaryEngine = strings.ToLower(strings.TrimSpace(cfg.SummaryEngine))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.ReportsRoot = expandHome(home, cfg.ReportsRoot)
	cfg.SourceDir = expandHome(home, cfg.SourceDir)
	cfg.LogFile = expandHome(home, cfg.LogFile)

	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = newValidator()

// newValidator reports fields by their config key.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateConfig(cfg appConfig) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: %q fails %q", fe.Field(), fmt.Sprint(fe.Value()), fe.Tag())
		}
		return err
	}

	if _, err := cfg.channels(); err != nil {
		return fmt.Errorf("invalid channels: %w", err)
	}
	if err := digest.CheckHorizons(cfg.Horizons); err != nil {
		return fmt.Errorf("invalid horizons: %w", err)
	}
	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
		}
	}
	for name := range cfg.CloudWatchGroups {
		if _, err := model.ParseChannel(name); err != nil {
			return fmt.Errorf("invalid cloudwatch-groups: %w", err)
		}
	}
	return nil
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
