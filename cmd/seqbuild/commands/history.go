package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	derrors "git.home.luguber.info/inful/seqbuild/internal/errors"
	"git.home.luguber.info/inful/seqbuild/internal/eventstore"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int  `short:"n" help:"Number of runs to show (0 for all)" default:"20"`
	JSON  bool `name:"json" help:"Print runs as JSON"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	ctx, stop := g.signalContext()
	defer stop()

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	path := cfg.HistoryPath()
	if path == "" {
		return derrors.ValidationFailed("history", "no run history configured (set history.path, SEQBUILD_HISTORY or --history-db)")
	}

	store, err := eventstore.NewSQLiteStore(path)
	if err != nil {
		return derrors.HistoryFailed("open", err).WithContext("path", path)
	}
	defer func() { _ = store.Close() }()

	runs, err := eventstore.Summaries(ctx, store, h.Limit)
	if err != nil {
		return derrors.HistoryFailed("read", err).WithContext("path", path)
	}

	if h.JSON {
		enc := json.NewEncoder(g.out())
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	tw := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RUN\tTASK\tSTATUS\tSTARTED\tDURATION\tBYTES\tREVISION\tDETAIL")
	for _, r := range runs {
		detail := r.ErrorMessage
		if detail == "" && r.SinkWritten {
			detail = "copied to " + r.ExternalSink
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			shortID(r.RunID), r.Task, r.Status,
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration.Round(time.Millisecond),
			r.Bytes, r.Revision, detail)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
