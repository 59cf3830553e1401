package commands

import "fmt"

// CleanCmd implements the 'clean' command.
type CleanCmd struct{}

func (c *CleanCmd) Run(g *Global, root *CLI) error {
	ctx, stop := g.signalContext()
	defer stop()

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	store, closeHistory, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer closeHistory()

	p, err := newPipeline(cfg, nil, store)
	if err != nil {
		return err
	}
	if err := p.Clean(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.out(), "Removed %s\n", cfg.OutputDir())
	return nil
}
