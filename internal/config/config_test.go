// Copyright 2021 Daniel Erat.
// All rights reserved.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, contents string) string {
	t.Helper()
	p := filepath.Join(dir, "config.txt")
	if err := os.WriteFile(p, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
# a comment
listen = 0.0.0.0:8080
library_path = /music
covers_path = /var/musium/covers
audio_device = hw:0,0
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := &Config{
		Listen:      "0.0.0.0:8080",
		LibraryPath: "/music",
		CoversPath:  "/var/musium/covers",
		AudioDevice: "hw:0,0",
	}
	if *cfg != *want {
		t.Errorf("Load returned %+v; want %+v", cfg, want)
	}
}

func TestLoad_MissingKey(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, "listen = localhost:8080\n")
	if _, err := Load(p); err == nil {
		t.Error("Load unexpectedly succeeded with missing keys")
	}
}

func TestLoad_RelativePath(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
listen = localhost:8080
library_path = music
covers_path = /var/musium/covers
`)
	if _, err := Load(p); err == nil {
		t.Error("Load unexpectedly succeeded with relative library_path")
	}
}

func TestLoad_BadLine(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, "not-a-key-value-line\n")
	if _, err := Load(p); err == nil {
		t.Error("Load unexpectedly succeeded with malformed line")
	}
}
