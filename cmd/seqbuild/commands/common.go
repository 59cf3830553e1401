package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/seqbuild/internal/config"
	derrors "git.home.luguber.info/inful/seqbuild/internal/errors"
	"git.home.luguber.info/inful/seqbuild/internal/eventstore"
	"git.home.luguber.info/inful/seqbuild/internal/logfields"
	"git.home.luguber.info/inful/seqbuild/internal/metrics"
	"git.home.luguber.info/inful/seqbuild/internal/observability"
	"git.home.luguber.info/inful/seqbuild/internal/pipeline"
)

// Global carries process-wide values bound into every command.
type Global struct {
	// Context is the parent of every command context; nil means Background.
	Context context.Context
	Stdout  io.Writer
}

func (g *Global) out() io.Writer {
	if g == nil || g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func (g *Global) signalContext() (context.Context, context.CancelFunc) {
	parent := context.Background()
	if g != nil && g.Context != nil {
		parent = g.Context
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// CLI definition & global flags.
type CLI struct {
	Config    string           `short:"c" help:"Configuration file path (default: seqbuild.yaml in the project root)"`
	Dir       string           `short:"C" name:"dir" help:"Project root directory" default:"."`
	Verbose   bool             `short:"v" help:"Enable verbose logging"`
	LogFormat string           `name:"log-format" help:"Log output format (text|json)"`
	HistoryDB string           `name:"history-db" help:"Run history database (sqlite); overrides history.path"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" default:"withargs" aliases:"Build,default" help:"Clean, concatenate the inputs into the artifact and copy it to the external sink"`
	Clean   CleanCmd   `cmd:"" aliases:"Clean" help:"Remove the output directory"`
	Watch   WatchCmd   `cmd:"" help:"Build, then rebuild whenever inputs or configuration change"`
	Tasks   TasksCmd   `cmd:"" help:"List the task graph"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
	History HistoryCmd `cmd:"" help:"List recorded runs"`
}

// Options returns the kong options shared by main and tests.
func Options(version string) []kong.Option {
	return []kong.Option{
		kong.Name("seqbuild"),
		kong.Description("Concatenate script sources into a single deployable artifact."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	}
}

// AfterApply runs after flag parsing; set up logging from flags and environment
// until the configuration is loaded.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	c.setupLogger(
		config.NormalizeLogLevel(os.Getenv(config.EnvLogLevel)),
		config.NormalizeLogFormat(os.Getenv(config.EnvLogFormat)),
	)
	return nil
}

// setupLogger installs the default logger. Flags win over the given level and
// format.
func (c *CLI) setupLogger(level config.LogLevel, format config.LogFormat) {
	if c.Verbose {
		level = config.LogLevelDebug
	}
	if c.LogFormat != "" {
		format = config.NormalizeLogFormat(c.LogFormat)
	}
	slog.SetDefault(observability.NewLogger(os.Stderr, level.SlogLevel(), string(format)))
}

func (c *CLI) root() (string, error) {
	dir := c.Dir
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", derrors.ValidationFailed("dir", err.Error())
	}
	return abs, nil
}

// configPath returns the configuration file in use, or "" when running on
// built-in defaults.
func (c *CLI) configPath() string {
	if c.Config != "" {
		if abs, err := filepath.Abs(c.Config); err == nil {
			return abs
		}
		return c.Config
	}
	root, err := c.root()
	if err != nil {
		return ""
	}
	candidate := filepath.Join(root, config.DefaultFileName)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

// loadConfig loads configuration for the project root and applies the
// global flag overrides. Without an explicit -c, -C selects the root; an
// explicit config file roots the project at its own directory unless its
// pipeline.root says otherwise.
func (c *CLI) loadConfig() (*config.Config, error) {
	root, err := c.root()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(c.configPath(), root)
	if err != nil {
		return nil, err
	}
	if c.HistoryDB != "" {
		path, err := filepath.Abs(c.HistoryDB)
		if err != nil {
			return nil, derrors.ValidationFailed("history-db", err.Error())
		}
		cfg.History.Path = path
	}
	c.setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// absSink makes a sink given on the command line absolute against the
// working directory. ~ is left for the configuration to expand.
func absSink(sink string) string {
	if sink == "" || sink == "~" || strings.HasPrefix(sink, "~/") || filepath.IsAbs(sink) {
		return sink
	}
	if abs, err := filepath.Abs(sink); err == nil {
		return abs
	}
	return sink
}

// openHistory opens the run history store when one is configured. The
// configuration is validated first so a rejected history location is never
// created. Failure to open is logged and the run proceeds without history.
func openHistory(cfg *config.Config) (eventstore.Store, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	path := cfg.HistoryPath()
	if path == "" {
		return nil, func() {}, nil
	}
	store, err := eventstore.NewSQLiteStore(path)
	if err != nil {
		slog.Warn("Run history disabled", logfields.Path(path),
			logfields.Error(derrors.HistoryFailed("open", err)))
		return nil, func() {}, nil
	}
	return store, func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close run history", logfields.Error(err))
		}
	}, nil
}

func newPipeline(cfg *config.Config, rec metrics.Recorder, store eventstore.Store) (*pipeline.Pipeline, error) {
	opts := []pipeline.Option{pipeline.WithRecorder(rec)}
	if store != nil {
		opts = append(opts, pipeline.WithHistory(store))
	}
	return pipeline.New(cfg, opts...)
}
