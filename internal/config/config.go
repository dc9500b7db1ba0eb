// File: internal/config/config.go
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/jsonguard/internal/analysis/sanitizer"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// EngineConfig configures the batch runner.
type EngineConfig struct {
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	FileTimeout time.Duration `mapstructure:"file_timeout" yaml:"file_timeout"`
	Extensions  []string      `mapstructure:"extensions" yaml:"extensions"`
	SkipDirs    []string      `mapstructure:"skip_dirs" yaml:"skip_dirs"`
}

// SignatureConfig is a callee pattern plus the index of the argument it
// talks about.
type SignatureConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	Arg  int    `mapstructure:"arg" yaml:"arg"`
}

// AnalysisConfig is the file form of sanitizer.Config.
type AnalysisConfig struct {
	Sources          []string          `mapstructure:"sources" yaml:"sources"`
	Predicates       []SignatureConfig `mapstructure:"predicates" yaml:"predicates"`
	Exclusions       []string          `mapstructure:"exclusions" yaml:"exclusions"`
	Assertions       []SignatureConfig `mapstructure:"assertions" yaml:"assertions"`
	DereferenceFacts bool              `mapstructure:"dereference_facts" yaml:"dereference_facts"`
	MaxIterations    int               `mapstructure:"max_iterations" yaml:"max_iterations"`
}

// Sanitizer converts the section into the solver's configuration.
func (a AnalysisConfig) Sanitizer() sanitizer.Config {
	cfg := sanitizer.Config{
		Sources:                   append([]string(nil), a.Sources...),
		Exclusions:                append([]string(nil), a.Exclusions...),
		DereferenceImpliesNonNull: a.DereferenceFacts,
		MaxIterations:             a.MaxIterations,
	}
	for _, p := range a.Predicates {
		cfg.Predicates = append(cfg.Predicates, sanitizer.Signature{Name: p.Name, Arg: p.Arg})
	}
	for _, p := range a.Assertions {
		cfg.Assertions = append(cfg.Assertions, sanitizer.Signature{Name: p.Name, Arg: p.Arg})
	}
	return cfg
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "jsonguard")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Engine --
	v.SetDefault("engine.concurrency", runtime.NumCPU())
	v.SetDefault("engine.file_timeout", "30s")
	v.SetDefault("engine.extensions", []string{".js", ".mjs", ".cjs"})
	v.SetDefault("engine.skip_dirs", []string{"node_modules", ".git"})

	// -- Analysis --
	defaults := sanitizer.DefaultConfig()
	v.SetDefault("analysis.sources", defaults.Sources)
	v.SetDefault("analysis.predicates", signatureDefaults(defaults.Predicates))
	v.SetDefault("analysis.assertions", signatureDefaults(defaults.Assertions))
	v.SetDefault("analysis.exclusions", defaults.Exclusions)
	v.SetDefault("analysis.dereference_facts", defaults.DereferenceImpliesNonNull)
	v.SetDefault("analysis.max_iterations", 0)
}

// signatureDefaults renders signatures the way they would appear in YAML so
// that viper can decode defaults and file values through the same path.
func signatureDefaults(sigs []sanitizer.Signature) []map[string]any {
	out := make([]map[string]any, 0, len(sigs))
	for _, s := range sigs {
		out = append(out, map[string]any{"name": s.Name, "arg": s.Arg})
	}
	return out
}

// EnvPrefix namespaces environment overrides, e.g. JSONGUARD_ENGINE_CONCURRENCY.
const EnvPrefix = "JSONGUARD"

// BindEnvironment lets JSONGUARD_* variables override any key that has a default.
func BindEnvironment(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Engine.Concurrency <= 0 {
		return fmt.Errorf("engine.concurrency must be a positive integer")
	}
	if c.Engine.FileTimeout < 0 {
		return fmt.Errorf("engine.file_timeout must not be negative")
	}
	if len(c.Engine.Extensions) == 0 {
		return fmt.Errorf("engine.extensions must list at least one file extension")
	}
	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the Analysis section.
func (a *AnalysisConfig) Validate() error {
	if len(a.Sources) == 0 {
		return fmt.Errorf("sources must name at least one pattern")
	}
	if a.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must not be negative")
	}
	return a.Sanitizer().Validate()
}
