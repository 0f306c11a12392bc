package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/appforge/cmd/appforge/commands"
	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
	"git.home.luguber.info/inful/appforge/internal/version"
)

func main() {
	cli := &commands.CLI{}
	global := &commands.Global{}
	parser := kong.Parse(cli,
		kong.Name("appforge"),
		kong.Description("Generate web apps from briefs and publish them to GitHub Pages."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(global),
	)
	if err := parser.Run(global, cli); err != nil {
		derrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
