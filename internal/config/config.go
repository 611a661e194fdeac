// Package config loads repograph settings from defaults, an optional YAML
// file and REPOGRAPH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/repograph/internal/graph"
	"github.com/phobologic/repograph/internal/history"
	"github.com/phobologic/repograph/internal/lang"
	"github.com/phobologic/repograph/internal/logging"
	"github.com/phobologic/repograph/internal/model"
	"github.com/phobologic/repograph/internal/repograph"
)

// FileName is the config file looked up in the repository root.
const FileName = ".repograph.yaml"

// EnvPrefix prefixes environment overrides, e.g. REPOGRAPH_HISTORY_MAX_COMMITS.
const EnvPrefix = "REPOGRAPH"

// Config is the complete repograph configuration.
type Config struct {
	Include     string        `mapstructure:"include" yaml:"include"`
	Languages   []string      `mapstructure:"languages" yaml:"languages"`
	Size        SizeConfig    `mapstructure:"size" yaml:"size"`
	MaxFileSize int           `mapstructure:"max_file_size" yaml:"max_file_size"`
	Workers     int           `mapstructure:"workers" yaml:"workers"`
	MergePolicy string        `mapstructure:"merge_policy" yaml:"merge_policy"`
	TopModules  int           `mapstructure:"top_modules" yaml:"top_modules"`
	SkipTests   bool          `mapstructure:"skip_tests" yaml:"skip_tests"`
	History     HistoryConfig `mapstructure:"history" yaml:"history"`
	Log         LogConfig     `mapstructure:"log" yaml:"log"`
}

// SizeConfig holds the size bucket boundaries in characters.
type SizeConfig struct {
	Small  int `mapstructure:"small" yaml:"small"`
	Medium int `mapstructure:"medium" yaml:"medium"`
}

// HistoryConfig configures the commit grapher and diff tracker.
type HistoryConfig struct {
	MethodLinking string `mapstructure:"method_linking" yaml:"method_linking"`
	MaxCommits    int    `mapstructure:"max_commits" yaml:"max_commits"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Include:     repograph.DefaultInclude,
		Languages:   []string{lang.Default().Name},
		Size:        SizeConfig{Small: model.DefaultThresholds.Small, Medium: model.DefaultThresholds.Medium},
		MaxFileSize: 1_000_000,
		MergePolicy: string(graph.LastWriterWins),
		TopModules:  10,
		History:     HistoryConfig{MethodLinking: string(history.LinkByOwner)},
		Log:         LogConfig{Level: "info", Format: string(logging.TextFormat)},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("include", d.Include)
	v.SetDefault("languages", d.Languages)
	v.SetDefault("size.small", d.Size.Small)
	v.SetDefault("size.medium", d.Size.Medium)
	v.SetDefault("max_file_size", d.MaxFileSize)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("merge_policy", d.MergePolicy)
	v.SetDefault("top_modules", d.TopModules)
	v.SetDefault("skip_tests", d.SkipTests)
	v.SetDefault("history.method_linking", d.History.MethodLinking)
	v.SetDefault("history.max_commits", d.History.MaxCommits)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// New returns a viper instance with defaults and environment overrides
// registered, ready for flag binding and Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration into v. An explicit path must exist; otherwise
// FileName in root is read when present.
func Load(v *viper.Viper, root, explicit string) (*Config, error) {
	v.SetConfigType("yaml")
	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", explicit, err)
		}
	} else {
		path := filepath.Join(root, FileName)
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("checking config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and enum fields.
func (c *Config) Validate() error {
	var errs []error
	if c.Size.Small <= 0 || c.Size.Medium <= c.Size.Small {
		errs = append(errs, fmt.Errorf("size thresholds must satisfy 0 < small < medium, got %d and %d", c.Size.Small, c.Size.Medium))
	}
	if c.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("max_file_size must not be negative, got %d", c.MaxFileSize))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.History.MaxCommits < 0 {
		errs = append(errs, fmt.Errorf("history.max_commits must not be negative, got %d", c.History.MaxCommits))
	}
	if _, err := graph.ParseMergePolicy(c.MergePolicy); err != nil {
		errs = append(errs, err)
	}
	if _, err := history.ParseLinkMode(c.History.MethodLinking); err != nil {
		errs = append(errs, err)
	}
	for _, name := range c.Languages {
		if _, ok := lang.Languages[name]; !ok {
			errs = append(errs, fmt.Errorf("unsupported language %q", name))
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch logging.Format(c.Log.Format) {
	case logging.TextFormat, logging.JSONFormat:
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ComposerOptions maps the configuration onto repository composer options.
func (c *Config) ComposerOptions() repograph.Options {
	opts := repograph.DefaultOptions()
	opts.Include = c.Include
	opts.Languages = c.Languages
	opts.SkipTests = c.SkipTests
	opts.Thresholds = model.Thresholds{Small: c.Size.Small, Medium: c.Size.Medium}
	opts.MaxFileSize = c.MaxFileSize
	opts.Workers = c.Workers
	if p, err := graph.ParseMergePolicy(c.MergePolicy); err == nil {
		opts.Policy = p
	}
	return opts
}

// LinkMode returns the configured method linking mode.
func (c *Config) LinkMode() history.LinkMode {
	m, err := history.ParseLinkMode(c.History.MethodLinking)
	if err != nil {
		return history.LinkByOwner
	}
	return m
}

// WriteYAML writes c as YAML.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}
