package config

import (
	"bytes"
	"encoding/json/v2"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	domainerrors "github.com/listenupapp/watchmodule/internal/errors"
	"github.com/listenupapp/watchmodule/internal/module"
	"github.com/listenupapp/watchmodule/internal/validation"
)

// LoadGlobal reads the global config file, creating it empty when it does
// not exist. An empty file is an empty config. Malformed JSON and invalid
// entries are ConfigValidation errors.
func LoadGlobal(path string, v *validation.Validator) (map[string]module.Settings, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- config path comes from the user
	if os.IsNotExist(err) {
		if err := bootstrapGlobal(path); err != nil {
			return nil, err
		}
		return map[string]module.Settings{}, nil
	}
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeConfigValidation, "cannot read %s", path)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]module.Settings{}, nil
	}

	var global map[string]module.Settings
	if err := json.Unmarshal(data, &global); err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeConfigValidation, "%s is not a valid config", path)
	}
	if global == nil {
		global = map[string]module.Settings{}
	}

	for _, name := range slices.Sorted(maps.Keys(global)) {
		if err := v.Validate(globalEntry(name, global[name])); err != nil {
			return nil, domainerrors.Wrapf(err, domainerrors.CodeConfigValidation, "%s: module %q", path, name)
		}
	}

	return global, nil
}

// bootstrapGlobal creates an empty global config file and its directory.
func bootstrapGlobal(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644) //#nosec G304 -- config path comes from the user
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("create config file: %w", err)
	}
	return f.Close()
}

// globalEntry flattens settings into the shape the validator checks.
func globalEntry(name string, s module.Settings) validation.GlobalEntry {
	entry := validation.GlobalEntry{
		Name:     name,
		Includes: s.Includes,
		Excludes: s.Excludes,
	}
	if s.Command == nil {
		return entry
	}
	if s.Command.IsPatterns() {
		entry.Patterns = make(map[string]string)
		for _, pattern := range s.Command.Patterns() {
			entry.Patterns[pattern], _ = s.Command.Command(pattern)
		}
		return entry
	}
	single := s.Command.Single()
	entry.Command = &single
	return entry
}
