// Copyright 2021 Daniel Erat.
// All rights reserved.

// Package config loads and validates Musium's daemon configuration file.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config holds Musium's daemon configuration, loaded from a flat
// key=value file (see spec.md §6).
type Config struct {
	// Listen holds the "host:port" address the HTTP control surface binds to.
	Listen string
	// LibraryPath is the absolute path to the root of the FLAC library.
	LibraryPath string
	// CoversPath is the absolute path to the thumbnail cache directory.
	CoversPath string
	// AudioDevice is an opaque device name passed through to the player
	// (spec.md §6); empty means "use the platform default". The beep/oto
	// output backend has no device-selection API, so a nonempty value is
	// only used to log a startup warning rather than to pick a device.
	AudioDevice string
}

// requiredKeys lists the config keys that must be present in every config
// file. AudioDevice is intentionally excluded: it's opaque and optional,
// since not every platform backend needs a named device (see SPEC_FULL.md
// §4.H).
var requiredKeys = []string{"listen", "library_path", "covers_path"}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	vals := make(map[string]string)
	sc := bufio.NewScanner(f)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.Index(line, "=")
		if i < 0 {
			return nil, fmt.Errorf("%v:%v: missing '=' in %q", path, lineNum, line)
		}
		key := strings.TrimSpace(line[:i])
		val := strings.TrimSpace(line[i+1:])
		if key == "" {
			return nil, fmt.Errorf("%v:%v: empty key", path, lineNum)
		}
		vals[key] = val
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{
		Listen:      vals["listen"],
		LibraryPath: vals["library_path"],
		CoversPath:  vals["covers_path"],
		AudioDevice: vals["audio_device"],
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// check validates that cfg is complete and self-consistent, in the same
// load-then-validate style as the teacher's checkServerURL.
func (cfg *Config) check() error {
	for _, k := range requiredKeys {
		var v string
		switch k {
		case "listen":
			v = cfg.Listen
		case "library_path":
			v = cfg.LibraryPath
		case "covers_path":
			v = cfg.CoversPath
		}
		if v == "" {
			return fmt.Errorf("missing required config key %q", k)
		}
	}
	if !filepath.IsAbs(cfg.LibraryPath) {
		return fmt.Errorf("library_path %q must be absolute", cfg.LibraryPath)
	}
	if !filepath.IsAbs(cfg.CoversPath) {
		return fmt.Errorf("covers_path %q must be absolute", cfg.CoversPath)
	}
	if !strings.Contains(cfg.Listen, ":") {
		return fmt.Errorf("listen %q must be in host:port form", cfg.Listen)
	}
	return nil
}
