// Package config handles YAML config file loading for dredge pull.
package config

import (
	"os"
	"strings"
)

// ExpandEnv replaces ${VAR} and ${VAR:-default} references in the input
// with environment variable values. Only the braced forms are expanded;
// bare $VAR and literal dollar signs pass through untouched, so secrets
// containing $ survive.
//
// Unset variables without defaults expand to empty string (not an error).
// This is intentional: required secrets will fail at downstream validation
// (e.g., the pull command's provider token check).
func ExpandEnv(input string) string {
	var b strings.Builder
	b.Grow(len(input))

	for {
		start := strings.Index(input, "${")
		if start < 0 {
			b.WriteString(input)
			return b.String()
		}
		b.WriteString(input[:start])

		rest := input[start+2:]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			// Unterminated reference, emit verbatim
			b.WriteString(input[start:])
			return b.String()
		}
		expr := rest[:end]
		input = rest[end+1:]

		name, fallback, hasFallback := strings.Cut(expr, ":-")
		if !validVarName(name) {
			// Not a variable reference, emit verbatim
			b.WriteString("${")
			b.WriteString(expr)
			b.WriteByte('}')
			continue
		}

		if v, ok := os.LookupEnv(name); ok && v != "" {
			b.WriteString(v)
		} else if hasFallback {
			b.WriteString(fallback)
		}
		// Unset without fallback: empty string
	}
}

// validVarName reports whether s is a shell-style variable name:
// [A-Za-z_][A-Za-z0-9_]*.
func validVarName(s string) bool {
	for i, r := range s {
		switch {
		case r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return s != ""
}
