package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/listenupapp/watchmodule/internal/errors"
	"github.com/listenupapp/watchmodule/internal/validation"
)

func writeGlobal(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "watch-module.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadGlobal_CreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "watch-module", "watch-module.json")

	global, err := LoadGlobal(path, validation.New())
	require.NoError(t, err)
	assert.Empty(t, global)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size(), "bootstrapped file is empty")

	// Loading the bootstrapped file again is an empty config.
	global, err = LoadGlobal(path, validation.New())
	require.NoError(t, err)
	assert.Empty(t, global)
}

func TestLoadGlobal_EmptyFile(t *testing.T) {
	global, err := LoadGlobal(writeGlobal(t, "  \n"), validation.New())
	require.NoError(t, err)
	assert.NotNil(t, global)
	assert.Empty(t, global)
}

func TestLoadGlobal_Entries(t *testing.T) {
	path := writeGlobal(t, `{
		"lib": {"command": "make dist", "includes": ["src", "lib"]},
		"@scope/ui": {"command": {"*.css": "postcss", "**/*.ts": "tsc"}, "excludes": ["src/gen"]},
		"plain": {"command": {}}
	}`)

	global, err := LoadGlobal(path, validation.New())
	require.NoError(t, err)
	require.Len(t, global, 3)

	lib := global["lib"]
	require.NotNil(t, lib.Command)
	assert.Equal(t, "make dist", lib.Command.Single())
	assert.Equal(t, []string{"src", "lib"}, lib.Includes)

	ui := global["@scope/ui"]
	require.NotNil(t, ui.Command)
	assert.True(t, ui.Command.IsPatterns())
	assert.Equal(t, []string{"**/*.ts", "*.css"}, ui.Command.Patterns())
	assert.Equal(t, []string{"src/gen"}, ui.Excludes)

	plain := global["plain"]
	require.NotNil(t, plain.Command)
	assert.True(t, plain.Command.IsZero())
}

func TestLoadGlobal_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{name: "malformed json", content: `{"lib": `, wantMsg: "is not a valid config"},
		{name: "not an object", content: `["lib"]`, wantMsg: "is not a valid config"},
		{name: "empty command", content: `{"lib": {"command": ""}}`, wantMsg: `module "lib": command`},
		{name: "empty include", content: `{"lib": {"includes": ["src", ""]}}`, wantMsg: "includes[1] is required"},
		{name: "empty exclude", content: `{"lib": {"excludes": [""]}}`, wantMsg: "excludes[0] is required"},
		{name: "invalid glob", content: `{"lib": {"command": {"[a-": "make"}}}`, wantMsg: "is not a valid glob pattern"},
		{name: "empty pattern command", content: `{"lib": {"command": {"*.ts": ""}}}`, wantMsg: "is required"},
		{name: "wrong command type", content: `{"lib": {"command": 42}}`, wantMsg: "is not a valid config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadGlobal(writeGlobal(t, tt.content), validation.New())
			require.Error(t, err)
			assert.ErrorIs(t, err, domainerrors.ErrConfigValidation)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadGlobal_Unreadable(t *testing.T) {
	// A directory cannot be read as a file.
	_, err := LoadGlobal(t.TempDir(), validation.New())
	assert.ErrorIs(t, err, domainerrors.ErrConfigValidation)
}
