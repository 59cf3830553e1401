package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	derrors "git.home.luguber.info/inful/seqbuild/internal/errors"
)

// DefaultFileName is the configuration file looked up in the project root
// when no explicit path is given.
const DefaultFileName = "seqbuild.yaml"

// Environment variable overrides.
const (
	EnvExternalSink = "SEQBUILD_EXTERNAL_SINK"
	EnvLogLevel     = "SEQBUILD_LOG_LEVEL"
	EnvLogFormat    = "SEQBUILD_LOG_FORMAT"
	EnvHistory      = "SEQBUILD_HISTORY"
)

// Config represents the application configuration
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	History  HistoryConfig  `yaml:"history,omitempty"`
	Watch    WatchConfig    `yaml:"watch,omitempty"`
	Metrics  MetricsConfig  `yaml:"metrics,omitempty"`
}

// PipelineConfig describes the clean/build task graph inputs and sinks.
type PipelineConfig struct {
	// Root is the project root every relative path is resolved against.
	// Defaults to the directory holding the configuration file.
	Root         string   `yaml:"root,omitempty"`
	Inputs       []string `yaml:"inputs"`
	OutputDir    string   `yaml:"output_dir"`
	Artifact     string   `yaml:"artifact"`
	ExternalSink string   `yaml:"external_sink,omitempty"` // empty disables the external copy
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level,omitempty"`
	Format LogFormat `yaml:"format,omitempty"`
}

// HistoryConfig points at the optional sqlite run history.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"`
}

// WatchConfig tunes the watch command.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce,omitempty"`
	Poll     time.Duration `yaml:"poll,omitempty"`
}

// MetricsConfig enables Prometheus output.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"`
	Addr     string `yaml:"addr,omitempty"`
}

// Default returns the configuration reproducing the stock project layout:
// Scripts/Common.py and Scripts/Sequencer.py joined into Out/Sequencer.py.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if len(c.Pipeline.Inputs) == 0 {
		c.Pipeline.Inputs = []string{
			filepath.Join("Scripts", "Common.py"),
			filepath.Join("Scripts", "Sequencer.py"),
		}
	}
	if c.Pipeline.OutputDir == "" {
		c.Pipeline.OutputDir = "Out"
	}
	if c.Pipeline.Artifact == "" {
		c.Pipeline.Artifact = "Sequencer.py"
	}
	c.Logging.Level = NormalizeLogLevel(string(c.Logging.Level))
	c.Logging.Format = NormalizeLogFormat(string(c.Logging.Format))
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = 300 * time.Millisecond
	}
}

// Load loads configuration from the specified file. Environment files next to
// the configuration are loaded first so that ${VAR} references and overrides
// can be supplied through them.
func Load(configPath string) (*Config, error) {
	loadEnvFiles(filepath.Dir(configPath))

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, derrors.ConfigNotFound(configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, derrors.ConfigInvalid(configPath, err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, derrors.ConfigInvalid(configPath, err)
	}

	if cfg.Pipeline.Root == "" {
		cfg.Pipeline.Root = filepath.Dir(configPath)
	} else if !filepath.IsAbs(cfg.Pipeline.Root) {
		cfg.Pipeline.Root = filepath.Join(filepath.Dir(configPath), cfg.Pipeline.Root)
	}

	cfg.applyDefaults()
	cfg.ApplyEnv()
	slog.Debug("Loaded configuration", "path", configPath, "inputs", len(cfg.Pipeline.Inputs))
	return &cfg, nil
}

// LoadOrDefault loads configPath when set. When empty, the default file in
// root is used if present, otherwise the built-in defaults rooted at root.
func LoadOrDefault(configPath, root string) (*Config, error) {
	if configPath != "" {
		return Load(configPath)
	}
	candidate := filepath.Join(root, DefaultFileName)
	if _, err := os.Stat(candidate); err == nil {
		return Load(candidate)
	}

	loadEnvFiles(root)
	cfg := Default()
	cfg.Pipeline.Root = root
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv applies SEQBUILD_* environment overrides. A set but empty
// SEQBUILD_EXTERNAL_SINK disables the external copy.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvExternalSink); ok {
		c.Pipeline.ExternalSink = strings.TrimSpace(v)
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = NormalizeLogLevel(v)
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = NormalizeLogFormat(v)
	}
	if v := os.Getenv(EnvHistory); v != "" {
		c.History.Path = v
	}
}

// resolve joins p onto the project root unless it is already absolute.
func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Pipeline.Root, p)
}

// InputPaths returns the input files in declared order, resolved against the root.
func (c *Config) InputPaths() []string {
	out := make([]string, 0, len(c.Pipeline.Inputs))
	for _, in := range c.Pipeline.Inputs {
		out = append(out, c.resolve(in))
	}
	return out
}

// OutputDir returns the resolved output directory.
func (c *Config) OutputDir() string {
	return c.resolve(c.Pipeline.OutputDir)
}

// ArtifactPath returns the resolved path of the artifact inside the output directory.
func (c *Config) ArtifactPath() string {
	return filepath.Join(c.OutputDir(), c.Pipeline.Artifact)
}

// ExternalSinkDir returns the external sink with a leading ~ expanded, or ""
// when the feature is disabled.
func (c *Config) ExternalSinkDir() string {
	sink := c.Pipeline.ExternalSink
	if sink == "" {
		return ""
	}
	if sink == "~" || strings.HasPrefix(sink, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return sink
		}
		return filepath.Join(home, strings.TrimPrefix(sink, "~"))
	}
	return filepath.Clean(sink)
}

// HistoryPath returns the resolved sqlite history path, or "" when disabled.
func (c *Config) HistoryPath() string {
	if c.History.Path == "" {
		return ""
	}
	return c.resolve(c.History.Path)
}

// MetricsTextfilePath returns the resolved metrics textfile, or "" when disabled.
func (c *Config) MetricsTextfilePath() string {
	if c.Metrics.Textfile == "" {
		return ""
	}
	return c.resolve(c.Metrics.Textfile)
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Default()
	example.Pipeline.ExternalSink = "~/Documents/maya/2016/scripts"

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := "# seqbuild configuration\n" +
		"# external_sink is optional; remove it to disable the external copy.\n"
	if err := os.WriteFile(configPath, append([]byte(header), data...), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
