package commands

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	prom "github.com/prometheus/client_golang/prometheus"

	derrors "git.home.luguber.info/inful/seqbuild/internal/errors"
	"git.home.luguber.info/inful/seqbuild/internal/logfields"
	"git.home.luguber.info/inful/seqbuild/internal/metrics"
	"git.home.luguber.info/inful/seqbuild/internal/pipeline"
)

// BuildCmd implements the 'build' command (the default).
type BuildCmd struct {
	ExternalSink string `name:"external-sink" help:"Directory that receives a copy of the artifact when it exists. Precedence: --external-sink > SEQBUILD_EXTERNAL_SINK > config."`
	MetricsFile  string `name:"metrics-file" help:"Write Prometheus metrics in node-exporter textfile format after the run"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	ctx, stop := g.signalContext()
	defer stop()

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if b.ExternalSink != "" {
		cfg.Pipeline.ExternalSink = absSink(b.ExternalSink)
		slog.Debug("External sink overridden via CLI flag", logfields.Sink(cfg.Pipeline.ExternalSink))
	}

	if b.MetricsFile != "" {
		path, err := filepath.Abs(b.MetricsFile)
		if err != nil {
			return derrors.ValidationFailed("metrics-file", err.Error())
		}
		cfg.Metrics.Textfile = path
	}
	metricsFile := cfg.MetricsTextfilePath()
	reg := prom.NewRegistry()
	var rec metrics.Recorder = metrics.NoopRecorder{}
	if metricsFile != "" {
		rec = metrics.NewPrometheusRecorder(reg)
	}

	store, closeHistory, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer closeHistory()

	p, err := newPipeline(cfg, rec, store)
	if err != nil {
		return err
	}

	res, runErr := p.Build(ctx)
	if metricsFile != "" {
		if err := metrics.WriteTextfile(metricsFile, reg); err != nil {
			slog.Warn("Failed to write metrics textfile", logfields.Path(metricsFile), logfields.Error(err))
		}
	}
	if runErr != nil {
		return runErr
	}
	printResult(g.out(), res)
	return nil
}

func printResult(w io.Writer, res *pipeline.Result) {
	_, _ = fmt.Fprintf(w, "Built %s (%d bytes, sha256 %s)\n", res.Artifact, res.Bytes, res.SHA256)
	switch {
	case res.SinkWritten:
		_, _ = fmt.Fprintf(w, "Copied to %s\n", filepath.Join(res.ExternalSink, filepath.Base(res.Artifact)))
	case res.SinkReason != pipeline.SinkReasonDisabled:
		_, _ = fmt.Fprintf(w, "External sink %s skipped (%s)\n", res.ExternalSink, res.SinkReason)
	}
}
