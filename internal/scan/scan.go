// Copyright 2021 Daniel Erat.
// All rights reserved.

// Package scan walks a FLAC library root and reads each track's metadata
// (spec.md §4.C), using a bounded worker pool in the same producer/
// consumer shape as the teacher's cmd/nup/scan/command.go and
// llehouerou-waves' internal/library processFiles.
package scan

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/derat/musium/internal/flacmeta"
)

// numWorkers is the size of the metadata-reading worker pool. Fixed
// rather than configurable, matching the teacher's songChanSize-style
// constants in cmd/nup/scan/command.go.
const numWorkers = 8

// pathChanSize bounds the number of pending paths buffered between the
// walker and the worker pool.
const pathChanSize = 64

// Result is one successfully scanned track.
type Result struct {
	Path    string // relative to the library root
	ModTime time.Time
	Meta    *flacmeta.Metadata
}

// FileError records a per-file failure. A single bad file never aborts
// the scan (spec.md §4.C); all FileErrors are returned alongside the
// successful Results.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string { return fmt.Sprintf("%v: %v", e.Path, e.Err) }

// workerOut is one worker's outcome for a single path: exactly one of
// Res and Err is set.
type workerOut struct {
	Res *Result
	Err *FileError
}

// Progress reports scan progress for a periodic log line, in the same
// ticker-driven style as llehouerou-waves' ScanProgress.
type Progress struct {
	Current, Total int
}

// Walk walks root breadth-first (spec.md §4.C), filters to regular files
// with a ".flac" extension, and reads each one's metadata in parallel.
// progress, if non-nil, receives periodic updates and is closed when the
// scan finishes.
func Walk(root string, logger *slog.Logger, progress chan<- Progress) ([]Result, []FileError, error) {
	paths, err := walkPaths(root)
	if err != nil {
		return nil, nil, err
	}

	total := len(paths)
	var processed atomic.Int64
	pathCh := make(chan string, pathChanSize)
	outCh := make(chan workerOut, pathChanSize)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range pathCh {
				out := processFile(root, p)
				outCh <- out
				processed.Add(1)
			}
		}()
	}

	go func() {
		for _, p := range paths {
			pathCh <- p
		}
		close(pathCh)
	}()

	done := make(chan struct{})
	if progress != nil {
		go func() {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					progress <- Progress{Current: int(processed.Load()), Total: total}
				case <-done:
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(outCh)
	}()

	var results []Result
	var errs []FileError
	for out := range outCh {
		if out.Err != nil {
			logger.Warn("failed reading track", "path", out.Err.Path, "err", out.Err.Err)
			errs = append(errs, *out.Err)
		} else {
			results = append(results, *out.Res)
		}
	}
	close(done)
	if progress != nil {
		progress <- Progress{Current: total, Total: total}
		close(progress)
	}

	return results, errs, nil
}

func processFile(root, path string) workerOut {
	fi, err := os.Stat(path)
	if err != nil {
		return workerOut{Err: &FileError{Path: path, Err: err}}
	}
	meta, err := flacmeta.Read(path)
	if err != nil {
		return workerOut{Err: &FileError{Path: path, Err: err}}
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return workerOut{Err: &FileError{Path: path, Err: err}}
	}
	return workerOut{Res: &Result{Path: rel, ModTime: fi.ModTime(), Meta: meta}}
}

// inodeKey uniquely identifies a file by device and inode, used to detect
// and terminate symlink cycles (spec.md §4.C).
type inodeKey struct{ dev, ino uint64 }

// walkPaths returns the absolute paths of every regular ".flac" file
// under root, visited breadth-first, refusing to revisit an inode already
// seen so that symlink cycles terminate.
func walkPaths(root string) ([]string, error) {
	var paths []string
	seen := make(map[inodeKey]struct{})

	type dirEntry struct{ path string }
	queue := []dirEntry{{root}}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir.path)
		if err != nil {
			return nil, fmt.Errorf("reading %v: %w", dir.path, err)
		}
		for _, e := range entries {
			p := filepath.Join(dir.path, e.Name())
			info, err := os.Stat(p) // follows symlinks
			if err != nil {
				// Per-file stat errors are reported by processFile, not here.
				if strings.EqualFold(filepath.Ext(p), ".flac") {
					paths = append(paths, p)
				}
				continue
			}
			key, ok := inodeKeyOf(info)
			if ok {
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
			}
			if info.IsDir() {
				queue = append(queue, dirEntry{p})
				continue
			}
			if info.Mode().IsRegular() && strings.EqualFold(filepath.Ext(p), ".flac") {
				paths = append(paths, p)
			}
		}
	}
	return paths, nil
}

// inodeKeyOf extracts a device+inode key from fi. Musium targets Linux
// single-board computers (spec.md §1), so this relies on syscall.Stat_t
// rather than a portable abstraction.
func inodeKeyOf(fi fs.FileInfo) (inodeKey, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return inodeKey{}, false
	}
	return inodeKey{dev: uint64(st.Dev), ino: st.Ino}, true
}
