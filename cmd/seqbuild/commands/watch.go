package commands

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/seqbuild/internal/config"
	derrors "git.home.luguber.info/inful/seqbuild/internal/errors"
	"git.home.luguber.info/inful/seqbuild/internal/eventstore"
	"git.home.luguber.info/inful/seqbuild/internal/logfields"
	"git.home.luguber.info/inful/seqbuild/internal/metrics"
	"git.home.luguber.info/inful/seqbuild/internal/pipeline"
	"git.home.luguber.info/inful/seqbuild/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Poll        time.Duration `help:"Also rebuild on this fixed interval (0 disables; overrides watch.poll)"`
	Debounce    time.Duration `help:"Quiet period after a change before rebuilding (overrides watch.debounce)"`
	MetricsAddr string        `name:"metrics-addr" help:"Serve Prometheus metrics on this address, e.g. :9105"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	ctx, stop := g.signalContext()
	defer stop()

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	poll := firstPositive(w.Poll, cfg.Watch.Poll)
	debounce := firstPositive(w.Debounce, cfg.Watch.Debounce)
	addr := w.MetricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}

	reg := prom.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)

	store, closeHistory, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer closeHistory()

	b, err := newRebuilder(cfg, rec, store, root, g.out())
	if err != nil {
		return err
	}

	if addr != "" {
		shutdown := serveMetrics(addr, reg)
		defer shutdown()
	}

	b.build(ctx, "startup")

	paths := cfg.InputPaths()
	cfgPath := root.configPath()
	if cfgPath != "" {
		paths = append(paths, cfgPath)
	}
	watcher, err := watch.NewWatcher(paths, debounce, func(ctx context.Context, path string) {
		if path == cfgPath {
			b.reload()
		}
		b.build(ctx, path)
	})
	if err != nil {
		return err
	}

	if poll > 0 {
		sched, err := watch.NewScheduler()
		if err != nil {
			return err
		}
		if _, err := sched.Every(poll, "poll-build", func() { b.build(ctx, "poll") }); err != nil {
			return err
		}
		sched.Start()
		defer func() {
			if err := sched.Stop(); err != nil {
				slog.Warn("Failed to stop scheduler", logfields.Error(err))
			}
		}()
	}

	slog.Info("Watching for changes",
		logfields.Inputs(len(cfg.Pipeline.Inputs)),
		slog.Duration("debounce", debounce),
		slog.Duration("poll", poll))
	if err := watcher.Run(ctx); err != nil {
		return err
	}
	slog.Info("Watch stopped")
	return nil
}

func firstPositive(values ...time.Duration) time.Duration {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// rebuilder owns the current pipeline so a configuration reload can swap it
// while the watcher and the scheduler keep calling build.
type rebuilder struct {
	mu    sync.Mutex
	outMu sync.Mutex
	p     *pipeline.Pipeline
	rec   metrics.Recorder
	store eventstore.Store
	root  *CLI
	out   io.Writer
}

func newRebuilder(cfg *config.Config, rec metrics.Recorder, store eventstore.Store, root *CLI, out io.Writer) (*rebuilder, error) {
	p, err := newPipeline(cfg, rec, store)
	if err != nil {
		return nil, err
	}
	return &rebuilder{p: p, rec: rec, store: store, root: root, out: out}, nil
}

func (b *rebuilder) current() *pipeline.Pipeline {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.p
}

// build runs one build and reports its outcome. Failures are logged; the
// watch loop keeps going.
func (b *rebuilder) build(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	slog.Info("Rebuilding", logfields.Reason(reason))
	res, err := b.current().Build(ctx)
	b.outMu.Lock()
	defer b.outMu.Unlock()
	if err != nil {
		if stdErrors.Is(err, context.Canceled) {
			return
		}
		slog.Error("Rebuild failed", logfields.Reason(reason), logfields.Error(err))
		_, _ = fmt.Fprintf(b.out, "Build failed: %s\n", derrors.NewCLIErrorAdapter(false, nil).FormatError(err))
		return
	}
	printResult(b.out, res)
}

// reload re-reads the configuration and swaps the pipeline. Inputs added by
// the new configuration are built but not watched until restart.
func (b *rebuilder) reload() {
	cfg, err := b.root.loadConfig()
	if err != nil {
		slog.Error("Failed to reload configuration", logfields.Error(err))
		return
	}
	p, err := newPipeline(cfg, b.rec, b.store)
	if err != nil {
		slog.Error("Reloaded configuration rejected", logfields.Error(err))
		return
	}

	b.mu.Lock()
	old := b.p.Config().InputPaths()
	b.p = p
	b.mu.Unlock()

	if !slices.Equal(old, cfg.InputPaths()) {
		slog.Warn("Input list changed; restart watch to track new inputs")
	}
	slog.Info("Configuration reloaded")
}

// serveMetrics exposes reg on addr/metrics until the returned func is called.
func serveMetrics(addr string, reg *prom.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("Serving metrics", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", logfields.Error(derrors.WatchFailed("serve metrics", err)))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
