package module

import (
	"encoding/json/v2"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/listenupapp/watchmodule/internal/errors"
	"github.com/listenupapp/watchmodule/internal/feed"
)

// writeModule creates a module directory with the given manifest content.
func writeModule(t *testing.T, dir, manifest string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(manifest), 0o644))
	return dir
}

func single(cmd string) *Commands {
	c := SingleCommand(cmd)
	return &c
}

func TestMerge_Precedence(t *testing.T) {
	tests := []struct {
		name         string
		tiers        []Settings
		wantIncludes []string
		wantExcludes []string
		wantCommand  string
	}{
		{
			name:         "no tiers uses default includes",
			tiers:        nil,
			wantIncludes: []string{"src"},
		},
		{
			name: "higher tier wins per key",
			tiers: []Settings{
				{Command: single("make")},
				{Command: single("yarn build"), Includes: []string{"lib"}},
			},
			wantIncludes: []string{"lib"},
			wantCommand:  "make",
		},
		{
			name: "absent keys fall through",
			tiers: []Settings{
				{},
				{Excludes: []string{"src/gen"}},
				{Includes: []string{"src"}, Command: single("npm run build")},
			},
			wantIncludes: []string{"src"},
			wantExcludes: []string{"src/gen"},
			wantCommand:  "npm run build",
		},
		{
			name: "explicit empty includes are kept",
			tiers: []Settings{
				{Includes: []string{}},
				{Includes: []string{"src"}},
			},
			wantIncludes: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Merge(tt.tiers...)
			assert.Equal(t, tt.wantIncludes, cfg.Includes)
			if tt.wantExcludes == nil {
				assert.Empty(t, cfg.Excludes)
			} else {
				assert.Equal(t, tt.wantExcludes, cfg.Excludes)
			}
			assert.Equal(t, tt.wantCommand, cfg.Commands.Single())
		})
	}
}

func TestMerge_DoesNotAliasTiers(t *testing.T) {
	includes := []string{"lib"}
	cfg := Merge(Settings{Includes: includes})
	cfg.Includes[0] = "changed"

	assert.Equal(t, "lib", includes[0])
}

func TestCommands_UnmarshalJSON(t *testing.T) {
	var s Settings
	require.NoError(t, json.Unmarshal([]byte(`{"command":"yarn build"}`), &s))
	require.NotNil(t, s.Command)
	assert.False(t, s.Command.IsPatterns())
	assert.Equal(t, "yarn build", s.Command.Single())

	var p Settings
	require.NoError(t, json.Unmarshal([]byte(`{"command":{"*.ts":"tsc","*.css":"sass"}}`), &p))
	require.NotNil(t, p.Command)
	assert.True(t, p.Command.IsPatterns())
	assert.Equal(t, []string{"*.css", "*.ts"}, p.Command.Patterns())

	var bad Settings
	assert.Error(t, json.Unmarshal([]byte(`{"command":42}`), &bad))
}

func TestCommands_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(PatternCommands(map[string]string{"*.ts": "tsc"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"*.ts":"tsc"}`, string(data))

	data, err = json.Marshal(SingleCommand("make"))
	require.NoError(t, err)
	assert.JSONEq(t, `"make"`, string(data))
}

func TestCommands_IsZero(t *testing.T) {
	assert.True(t, Commands{}.IsZero())
	assert.True(t, PatternCommands(map[string]string{}).IsZero())
	assert.False(t, SingleCommand("make").IsZero())
	assert.False(t, PatternCommands(map[string]string{"*": "make"}).IsZero())
}

func TestConfig_CommandsFor(t *testing.T) {
	root := "/work/lib"
	patterns := PatternCommands(map[string]string{
		"*.ts":        "tsc",
		"*.css":       "sass",
		"src/api/**":  "gen-api",
		"*.tsx":       "tsc",
		"docs/*.md":   "mkdocs",
		"nothing.zzz": "",
	})

	tests := []struct {
		name     string
		commands Commands
		paths    []string
		want     []string
	}{
		{
			name:     "no command",
			commands: Commands{},
			paths:    []string{"/work/lib/src/a.ts"},
			want:     nil,
		},
		{
			name:     "single always applies",
			commands: SingleCommand("yarn build"),
			paths:    nil,
			want:     []string{"yarn build"},
		},
		{
			name:     "match base name",
			commands: patterns,
			paths:    []string{"/work/lib/src/deep/a.ts"},
			want:     []string{"tsc"},
		},
		{
			name:     "several patterns",
			commands: patterns,
			paths:    []string{"/work/lib/src/a.css", "/work/lib/src/b.ts"},
			want:     []string{"sass", "tsc"},
		},
		{
			name:     "duplicate command runs once",
			commands: patterns,
			paths:    []string{"/work/lib/src/a.ts", "/work/lib/src/b.tsx"},
			want:     []string{"tsc"},
		},
		{
			name:     "relative pattern",
			commands: patterns,
			paths:    []string{"/work/lib/src/api/v1/users.json"},
			want:     []string{"gen-api"},
		},
		{
			name:     "no match",
			commands: patterns,
			paths:    []string{"/work/lib/README"},
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Commands: tt.commands}
			assert.Equal(t, tt.want, cfg.CommandsFor(root, tt.paths))
		})
	}
}

func TestMatchPattern(t *testing.T) {
	assert.True(t, MatchPattern("*.ts", "/m", "/m/src/x/a.ts"))
	assert.False(t, MatchPattern("*.ts", "/m", "/m/src/a.tsx"))
	assert.True(t, MatchPattern("src/**/*.ts", "/m", "/m/src/x/a.ts"))
	assert.False(t, MatchPattern("lib/**/*.ts", "/m", "/m/src/x/a.ts"))
	assert.True(t, MatchPattern("/m/src/*.ts", "/m", "/m/src/a.ts"))
}

func TestValidPattern(t *testing.T) {
	assert.True(t, ValidPattern("src/**/*.ts"))
	assert.False(t, ValidPattern("src/[a-"))
	assert.False(t, ValidPattern(""))
}

func TestReadManifest(t *testing.T) {
	root := t.TempDir()

	ok := writeModule(t, filepath.Join(root, "ok"), `{"name":"@acme/ui","watch-module":{"includes":["lib"]}}`)
	m, err := ReadManifest(ok)
	require.NoError(t, err)
	assert.Equal(t, "@acme/ui", m.Name)
	require.NotNil(t, m.WatchModule)
	assert.Equal(t, []string{"lib"}, m.WatchModule.Includes)

	tests := []struct {
		name string
		dir  string
	}{
		{"missing manifest", filepath.Join(root, "missing")},
		{"invalid json", writeModule(t, filepath.Join(root, "bad"), `{"name":`)},
		{"no name", writeModule(t, filepath.Join(root, "anon"), `{"version":"1.0.0"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadManifest(tt.dir)
			require.Error(t, err)
			assert.ErrorIs(t, err, domainerrors.ErrManifest)
		})
	}
}

func TestRegistry_CachesName(t *testing.T) {
	base := t.TempDir()
	dir := writeModule(t, filepath.Join(base, "packages", "ui"), `{"name":"ui"}`)
	reg := NewRegistry(base)

	first, err := reg.Get("packages/ui")
	require.NoError(t, err)
	assert.Equal(t, "ui", first.Name)
	assert.Equal(t, dir, first.Dir)
	assert.Equal(t, "packages/ui", first.Path)

	// The name is immutable for the session even if the manifest changes.
	writeModule(t, dir, `{"name":"renamed"}`)
	second, err := reg.Get("packages/ui")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, "ui", second.Name)
}

func TestRegistry_ManifestError(t *testing.T) {
	reg := NewRegistry(t.TempDir())

	_, err := reg.Get("does/not/exist")
	assert.ErrorIs(t, err, domainerrors.ErrManifest)
}

func TestPackageManager(t *testing.T) {
	npm := t.TempDir()
	assert.Equal(t, "npm", PackageManager(npm))

	yarn := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(yarn, "yarn.lock"), nil, 0o644))
	assert.Equal(t, "yarn", PackageManager(yarn))

	pnpm := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(pnpm, "pnpm-lock.yaml"), nil, 0o644))
	assert.Equal(t, "pnpm", PackageManager(pnpm))
}

func TestResolver_ManifestOverGlobal(t *testing.T) {
	base := t.TempDir()
	writeModule(t, filepath.Join(base, "ui"), `{"name":"ui","watch-module":{"command":"make dist"}}`)

	global := map[string]Settings{
		"ui": {Command: single("yarn build:global")},
	}
	f := feed.New(slog.New(slog.NewTextHandler(io.Discard, nil)), feed.Options{})
	r := NewResolver(NewRegistry(base), global, f)

	cfg, err := r.Resolve("ui")
	require.NoError(t, err)

	assert.Equal(t, "make dist", cfg.Commands.Single())
	assert.Equal(t, []string{"src"}, cfg.Includes)
	assert.Equal(t, TierManifest, cfg.Source)

	lines := f.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "ui", lines[0].Module)
	assert.Equal(t, "using package.json config", lines[0].Text)
}

func TestResolver_GlobalOverDefault(t *testing.T) {
	base := t.TempDir()
	writeModule(t, filepath.Join(base, "ui"), `{"name":"ui"}`)

	global := map[string]Settings{
		"ui": {Includes: []string{"lib"}},
	}
	r := NewResolver(NewRegistry(base), global, nil)

	cfg, err := r.Resolve("ui")
	require.NoError(t, err)

	assert.Equal(t, []string{"lib"}, cfg.Includes)
	assert.Equal(t, "npm run build", cfg.Commands.Single())
	assert.Equal(t, TierGlobal, cfg.Source)
}

func TestResolver_DefaultAndMemoized(t *testing.T) {
	base := t.TempDir()
	dir := writeModule(t, filepath.Join(base, "ui"), `{"name":"ui"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "yarn.lock"), nil, 0o644))

	f := feed.New(slog.New(slog.NewTextHandler(io.Discard, nil)), feed.Options{})
	r := NewResolver(NewRegistry(base), nil, f)

	first, err := r.Resolve("ui")
	require.NoError(t, err)
	assert.Equal(t, "yarn run build", first.Commands.Single())
	assert.Equal(t, TierDefault, first.Source)

	// Later changes on disk are not observed.
	require.NoError(t, os.Remove(filepath.Join(dir, "yarn.lock")))
	second, err := r.Resolve("ui")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Len(t, f.Lines(), 1, "the tier is announced once")
}

func TestResolver_PropagatesManifestError(t *testing.T) {
	r := NewResolver(NewRegistry(t.TempDir()), nil, nil)

	_, err := r.Resolve("missing")
	assert.ErrorIs(t, err, domainerrors.ErrManifest)
}

func TestConfig_WatchAndExcludePaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "gen"), 0o755))

	cfg := Config{
		Includes: []string{"src", "missing", "."},
		Excludes: []string{"src/gen/", "nope"},
	}

	assert.Equal(t, []string{filepath.Join(root, "src"), root}, cfg.WatchPaths(root))
	assert.Equal(t, []string{filepath.Join(root, "src", "gen")}, cfg.ExcludePaths(root))
}

func TestTier_String(t *testing.T) {
	assert.Equal(t, "package.json", TierManifest.String())
	assert.Equal(t, "global", TierGlobal.String())
	assert.Equal(t, "default", TierDefault.String())
}
