// Package version exposes the weave release version embedded at build time.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var raw string

// Get returns the current weave version.
func Get() string {
	return strings.TrimSpace(raw)
}
