// Copyright 2021 Daniel Erat.
// All rights reserved.

// Package serve implements the `musium serve` subcommand (spec.md §6):
// scans the library, builds the frozen index, and runs the HTTP control
// surface and player until a shutdown signal arrives. Shaped after the
// teacher's cmd/nup subcommand pattern (see DESIGN.md); the daemon loop
// itself has no teacher equivalent since the teacher runs inside App
// Engine rather than as a standalone process.
package serve

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"

	"github.com/derat/musium/internal/config"
	"github.com/derat/musium/internal/covers"
	"github.com/derat/musium/internal/index"
	"github.com/derat/musium/internal/logging"
	"github.com/derat/musium/internal/player"
	"github.com/derat/musium/internal/scan"
	"github.com/derat/musium/internal/server"
)

// readHeaderTimeout bounds how long the transport waits for a client's
// request headers (spec.md §5: "HTTP reads have a connection-level read
// timeout enforced by the transport").
const readHeaderTimeout = 10 * time.Second

// shutdownGrace bounds how long the daemon waits for in-flight HTTP
// requests to drain before forcing shutdown (spec.md §5: "stop
// accepting HTTP requests, drain in-flight ones").
const shutdownGrace = 10 * time.Second

// Command implements the `musium serve <config>` subcommand.
type Command struct{}

func (*Command) Name() string     { return "serve" }
func (*Command) Synopsis() string { return "run the playback daemon" }
func (*Command) Usage() string {
	return `serve <config>:
	Indexes the library named by <config>'s library_path and serves
	the JSON HTTP API and playback engine on <config>'s listen address
	until terminated.

`
}
func (*Command) SetFlags(f *flag.FlagSet) {}

// Execute implements spec.md §6's `musium serve <config>` CLI entry
// point: it runs until a clean shutdown, then exits 0.
func (cmd *Command) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: musium serve <config>")
		return subcommands.ExitUsageError
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
		// Tag collisions and id collisions are fatal at startup (spec.md
		// §4.D, §7): "if collisions are detected among accepted files,
		// abort startup."
		logging.Fatal(logger, "building index", "err", err)
	}
	logger.Info("indexed library", "tracks", idx.NumTracks(), "albums", idx.NumAlbums(), "artists", idx.NumArtists())

	coversStore, err := covers.Open(cfg.CoversPath)
	if err != nil {
		logger.Error("opening covers cache", "err", err)
		return subcommands.ExitFailure
	}
	defer coversStore.Close()

	p := player.New(idx, cfg.LibraryPath, cfg.AudioDevice, logger)
	playerCtx, cancelPlayer := context.WithCancel(context.Background())
	playerDone := make(chan struct{})
	go func() {
		p.Run(playerCtx)
		close(playerDone)
	}()

	mux := http.NewServeMux()
	server.New(mux, idx, cfg.LibraryPath, coversStore, p, logger)
	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen)
		serveErrCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// spec.md §5: "The daemon has a single shutdown path: stop accepting
	// HTTP requests, drain in-flight ones, send Shutdown to the player,
	// which closes the device and exits."
	select {
	case err := <-serveErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "err", err)
			cancelPlayer()
			<-playerDone
			return subcommands.ExitFailure
		}
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("error draining http server", "err", err)
		}
		<-serveErrCh
	}

	p.Shutdown()
	cancelPlayer()
	<-playerDone
	return subcommands.ExitSuccess
}
