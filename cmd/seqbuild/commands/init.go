package commands

import (
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/seqbuild/internal/config"
	derrors "git.home.luguber.info/inful/seqbuild/internal/errors"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite existing configuration file"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	path := root.Config
	if path == "" {
		dir, err := root.root()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, config.DefaultFileName)
	}

	_, _ = fmt.Fprintf(g.out(), "Writing configuration to %s\n", path)
	if err := config.Init(path, i.Force); err != nil {
		return derrors.Wrap(err, derrors.CategoryConfig, derrors.SeverityError, "initialization failed").
			WithContext("path", path)
	}
	_, _ = fmt.Fprintln(g.out(), "initialized successfully")
	return nil
}
