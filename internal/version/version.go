// Package version holds build-time version information for the healthlens
// binary. The variables are populated via -ldflags:
//
//	go build -ldflags="-X github.com/healthlens/healthlens-go/internal/version.Version=v0.4.0 \
//	                    -X github.com/healthlens/healthlens-go/internal/version.Commit=abc1234 \
//	                    -X github.com/healthlens/healthlens-go/internal/version.BuildDate=2026-01-01"
//
// Without ldflags the values fall back to readable defaults.
package version

import "fmt"

// Version is the semantic version of the binary. Defaults to "dev".
var Version = "dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build date in RFC3339 format.
var BuildDate = "unknown"

// String renders all three values on one line.
func String() string {
	return fmt.Sprintf("healthlens %s (commit %s, built %s)", Version, Commit, BuildDate)
}
