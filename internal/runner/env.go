// Package runner executes generated JavaScript in a separate node process.
package runner

import (
	"slices"
	"strings"
)

// Variables with these endings are withheld from executed code. This covers
// CODEGEN_API_KEY, CODEGEN_SERVER_API_KEY and REDIS_PASSWORD.
var secretSuffixes = []string{"_API_KEY", "_PASSWORD", "_SECRET"}

// childEnv filters environ (KEY=value pairs) down to what a node child may
// see.
func childEnv(environ []string) []string {
	return slices.DeleteFunc(slices.Clone(environ), func(kv string) bool {
		key, _, _ := strings.Cut(kv, "=")
		return isSecret(key)
	})
}

// isSecret matches case-insensitively, as Windows treats env names.
func isSecret(key string) bool {
	upper := strings.ToUpper(key)
	return slices.ContainsFunc(secretSuffixes, func(s string) bool {
		return strings.HasSuffix(upper, s)
	})
}
