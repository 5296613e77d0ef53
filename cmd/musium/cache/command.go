// Copyright 2021 Daniel Erat.
// All rights reserved.

// Package cache implements the `musium cache` subcommand (spec.md §6):
// scans the library, builds the in-memory index, and populates the
// on-disk thumbnail cache from each album's embedded cover art. Shaped
// after the teacher's cmd/nup/covers/command.go Command type (see
// DESIGN.md).
package cache

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/derat/musium/internal/config"
	"github.com/derat/musium/internal/covers"
	"github.com/derat/musium/internal/index"
	"github.com/derat/musium/internal/logging"
	"github.com/derat/musium/internal/scan"
)

// Command implements the `musium cache <config>` subcommand.
type Command struct{}

func (*Command) Name() string     { return "cache" }
func (*Command) Synopsis() string { return "build or refresh the album art thumbnail cache" }
func (*Command) Usage() string {
	return `cache <config>:
	Scans the library named by <config>'s library_path, then extracts
	and caches cover art for every album under its covers_path.

`
}
func (*Command) SetFlags(f *flag.FlagSet) {}

// Execute implements spec.md §6's `musium cache <config>` CLI entry
// point: exit 0 on success, 1 on any error.
func (cmd *Command) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: musium cache <config>")
		return subcommands.ExitFailure
	}
	logger := logging.Default()

	cfg, err := config.Load(f.Arg(0))
	if err != nil {
		logger.Error("loading config", "err", err)
		return subcommands.ExitFailure
	}

	results, fileErrs, err := scan.Walk(cfg.LibraryPath, logger, nil)
	if err != nil {
		logger.Error("scanning library", "err", err)
		return subcommands.ExitFailure
	}
	for _, fe := range fileErrs {
		logger.Warn("skipping unreadable file", "path", fe.Path, "err", fe.Err)
	}

	idx, err := index.Build(results, logger)
	if err != nil {
		logger.Error("building index", "err", err)
		return subcommands.ExitFailure
	}
	logger.Info("indexed library", "tracks", idx.NumTracks(), "albums", idx.NumAlbums(), "artists", idx.NumArtists())

	if err := os.MkdirAll(cfg.CoversPath, 0o755); err != nil {
		logger.Error("creating covers directory", "err", err)
		return subcommands.ExitFailure
	}
	store, err := covers.Open(cfg.CoversPath)
	if err != nil {
		logger.Error("opening covers cache", "err", err)
		return subcommands.ExitFailure
	}
	defer store.Close()

	built, skipped, failed := covers.CacheLibrary(idx, cfg.LibraryPath, cfg.CoversPath, store,
		func() int64 { return time.Now().Unix() }, logger)
	logger.Info("cache build complete", "built", built, "skipped", skipped, "failed", failed)
	if failed > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
