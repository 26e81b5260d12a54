package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&syncCmd{}, "")
	commander.Register(&backfillCmd{}, "")
	commander.Register(&serveCmd{}, "")
	commander.Register(&statsCmd{}, "")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
