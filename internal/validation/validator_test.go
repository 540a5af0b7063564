package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/listenupapp/watchmodule/internal/errors"
	"github.com/listenupapp/watchmodule/internal/validation"
)

func ptr(s string) *string { return &s }

func TestValidator_GlobalEntryValid(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name  string
		entry validation.GlobalEntry
	}{
		{
			name:  "single command",
			entry: validation.GlobalEntry{Name: "lib", Command: ptr("npm run build")},
		},
		{
			name: "pattern commands",
			entry: validation.GlobalEntry{
				Name:     "lib",
				Patterns: map[string]string{"*.ts": "tsc", "src/**/*.css": "postcss"},
			},
		},
		{
			name:  "empty pattern map",
			entry: validation.GlobalEntry{Name: "lib", Patterns: map[string]string{}},
		},
		{
			name:  "includes and excludes",
			entry: validation.GlobalEntry{Name: "lib", Includes: []string{"src", "lib"}, Excludes: []string{"src/gen"}},
		},
		{
			name:  "nothing set",
			entry: validation.GlobalEntry{Name: "lib"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, v.Validate(tt.entry))
		})
	}
}

func TestValidator_GlobalEntryErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		entry     validation.GlobalEntry
		wantField string
		wantMsg   string
	}{
		{
			name:      "missing name",
			entry:     validation.GlobalEntry{},
			wantField: "name",
			wantMsg:   "is required",
		},
		{
			name:      "empty single command",
			entry:     validation.GlobalEntry{Name: "lib", Command: ptr("")},
			wantField: "command",
			wantMsg:   "must be at least 1 characters",
		},
		{
			name:      "empty include entry",
			entry:     validation.GlobalEntry{Name: "lib", Includes: []string{"src", ""}},
			wantField: "includes[1]",
			wantMsg:   "is required",
		},
		{
			name:      "empty exclude entry",
			entry:     validation.GlobalEntry{Name: "lib", Excludes: []string{""}},
			wantField: "excludes[0]",
			wantMsg:   "is required",
		},
		{
			name:      "invalid glob",
			entry:     validation.GlobalEntry{Name: "lib", Patterns: map[string]string{"[a-": "make"}},
			wantField: "command_patterns[[a-]",
			wantMsg:   "is not a valid glob pattern",
		},
		{
			name:      "empty pattern command",
			entry:     validation.GlobalEntry{Name: "lib", Patterns: map[string]string{"*.ts": ""}},
			wantField: "command_patterns[*.ts]",
			wantMsg:   "is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.entry)
			require.Error(t, err)
			assert.ErrorIs(t, err, domainerrors.ErrConfigValidation)
			assert.Contains(t, err.Error(), tt.wantField)
			assert.Contains(t, err.Error(), tt.wantMsg)

			var domainErr *domainerrors.Error
			require.ErrorAs(t, err, &domainErr)
			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details, tt.wantField)
		})
	}
}

func TestValidator_ReportsEveryField(t *testing.T) {
	v := validation.New()

	err := v.Validate(validation.GlobalEntry{Includes: []string{""}, Excludes: []string{""}})
	require.Error(t, err)

	assert.Equal(t, "excludes[0] is required; includes[0] is required; name is required", err.Error())
}
