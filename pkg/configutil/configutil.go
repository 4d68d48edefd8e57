package configutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// localName turns `dir/name.ext` into `dir/name.local.ext`.
func localName(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + ".local" + ext
}

func readInto[T any](path string, out *T) (bool, error) {
	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(contents) == 0 {
		return false, nil
	}
	return true, json5.Unmarshal(contents, out)
}

// ReadConfig reads a json5 configuration file, `name` should come with a file extension.
// the following files are merged, where higher number is more prioritized.
// 1. <name>.<ext>
// 2. <name>.local.<ext>
//
// os.ErrNotExist is returned if neither file exists.
func ReadConfig[T any](name string) (T, error) {
	var out T

	found, err := readInto(name, &out)
	if err != nil {
		return out, err
	}

	local := localName(name)
	var override T
	foundLocal, err := readInto(local, &override)
	if err != nil {
		return out, err
	}
	if foundLocal {
		err = mergo.Merge(&out, override, mergo.WithOverride)
		if err != nil {
			return out, err
		}
		slog.Info("merging config with local overrides", "local", local)
	}

	if !found && !foundLocal {
		return out, os.ErrNotExist
	}
	return out, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadRecursively is ReadOrDefault but it goes up the filesystem from the cwd until the root
// to find the first directory holding a configuration file matching the name.
// fallback is returned when there is none.
func ReadRecursively[T any](name string, fallback T) (T, error) {
	current, err := os.Getwd()
	if err != nil {
		return fallback, err
	}

	for {
		path := filepath.Join(current, name)
		if exists(path) || exists(localName(path)) {
			return ReadOrDefault(path, fallback)
		}

		parent := filepath.Dir(current)
		if parent == current {
			return fallback, nil
		}
		current = parent
	}
}

// ReadOrDefault decodes the files of ReadConfig on top of fallback. a key that is
// present in a file wins even when its value is zero, absent keys keep their
// fallback value. fallback should not share maps or slices with the caller since decoding
// writes into them.
func ReadOrDefault[T any](name string, fallback T) (T, error) {
	out := fallback
	if _, err := readInto(name, &out); err != nil {
		return fallback, err
	}

	local := localName(name)
	foundLocal, err := readInto(local, &out)
	if err != nil {
		return fallback, err
	}
	if foundLocal {
		slog.Info("merging config with local overrides", "local", local)
	}
	return out, nil
}
