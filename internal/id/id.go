// Package id generates identifiers for build runs and other short-lived
// entities tracked by watch-module.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes of the identifiers handed out by this package.
const (
	RunPrefix  = "run"
	PassPrefix = "pass"
)

// Generate creates a prefixed unique ID using NanoID.
// Format: prefix-nanoid (e.g., "run-V1StGXR8_Z5jdHi6B-myT").
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// Run returns a new command run identifier.
func Run() string {
	return mustGenerate(RunPrefix)
}

// Pass returns a new scheduling pass identifier.
func Pass() string {
	return mustGenerate(PassPrefix)
}

// mustGenerate panics on entropy failures, which a build cannot recover from.
func mustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate %s ID: %v", prefix, err))
	}
	return id
}
