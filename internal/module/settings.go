// Package module describes watched modules: their manifest identity and
// their effective watch/build configuration.
package module

import (
	"bytes"
	"encoding/json/v2"
	"fmt"
	"maps"
	"slices"
)

// DefaultIncludes is used when no tier specifies includes.
var DefaultIncludes = []string{"src"}

// Settings is one tier of module configuration as written in JSON.
// A nil field is absent at that tier and falls through to the next one.
type Settings struct {
	Command  *Commands `json:"command,omitempty"`
	Includes []string  `json:"includes,omitempty"`
	Excludes []string  `json:"excludes,omitempty"`
}

// IsZero reports whether no field is present.
func (s Settings) IsZero() bool {
	return s.Command == nil && s.Includes == nil && s.Excludes == nil
}

// Commands is either a single shell command or a mapping from glob pattern
// to shell command.
type Commands struct {
	patterns map[string]string
	single   string
	isMap    bool
}

// SingleCommand returns Commands that always run command.
func SingleCommand(command string) Commands {
	return Commands{single: command}
}

// PatternCommands returns Commands keyed by glob pattern.
// An empty map means "no build step".
func PatternCommands(patterns map[string]string) Commands {
	return Commands{patterns: maps.Clone(patterns), isMap: true}
}

// IsZero reports whether there is nothing to run at all.
func (c Commands) IsZero() bool {
	if c.isMap {
		return len(c.patterns) == 0
	}
	return c.single == ""
}

// IsPatterns reports whether the commands are keyed by pattern.
func (c Commands) IsPatterns() bool {
	return c.isMap
}

// Single returns the single command, or "" for pattern commands.
func (c Commands) Single() string {
	return c.single
}

// Patterns returns the patterns in lexical order.
func (c Commands) Patterns() []string {
	return slices.Sorted(maps.Keys(c.patterns))
}

// Command returns the command registered for pattern.
func (c Commands) Command(pattern string) (string, bool) {
	cmd, ok := c.patterns[pattern]
	return cmd, ok
}

// String renders the commands for log lines.
func (c Commands) String() string {
	if !c.isMap {
		return c.single
	}
	var buf bytes.Buffer
	for i, pattern := range c.Patterns() {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%s => %s", pattern, c.patterns[pattern])
	}
	return buf.String()
}

// UnmarshalJSON accepts a string or an object of pattern to command.
func (c *Commands) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty command")
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = SingleCommand(s)
		return nil
	case '{':
		patterns := make(map[string]string)
		if err := json.Unmarshal(trimmed, &patterns); err != nil {
			return err
		}
		*c = Commands{patterns: patterns, isMap: true}
		return nil
	default:
		return fmt.Errorf("command must be a string or an object of pattern to command")
	}
}

// MarshalJSON writes the same shape UnmarshalJSON accepts.
func (c Commands) MarshalJSON() ([]byte, error) {
	if c.isMap {
		return json.Marshal(c.patterns, json.Deterministic(true))
	}
	return json.Marshal(c.single)
}
