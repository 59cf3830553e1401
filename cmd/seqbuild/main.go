package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/seqbuild/cmd/seqbuild/commands"
	derrors "git.home.luguber.info/inful/seqbuild/internal/errors"
	"git.home.luguber.info/inful/seqbuild/internal/version"
)

func main() {
	var cli commands.CLI
	ctx := kong.Parse(&cli, commands.Options(version.String())...)

	err := ctx.Run(&commands.Global{Stdout: os.Stdout}, &cli)
	os.Exit(derrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).Report(err))
}
