// Copyright 2021 Daniel Erat.
// All rights reserved.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/derat/musium/cmd/musium/cache"
	"github.com/derat/musium/cmd/musium/serve"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage %v: <command> <config>\n"+
			"Indexes a FLAC library and plays it over the local network.\n\n", os.Args[0])
		flag.PrintDefaults()
	}

	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(&cache.Command{}, "")
	subcommands.Register(&serve.Command{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
