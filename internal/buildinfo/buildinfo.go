// Package buildinfo holds version metadata injected at build time via
// -ldflags, written to the log when the CLI starts.
package buildinfo

import "fmt"

// BuildInfo carries version metadata set by -ldflags at build time; the
// zero value prints as a "dev" build.
type BuildInfo struct {
	Version    string
	CommitHash string
	BuildDate  string
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("version %s (commit: %s, built: %s)", b.orDefault(b.Version, "dev"),
		b.orDefault(b.CommitHash, "n/a"), b.orDefault(b.BuildDate, "<unknown>"))
}

func (BuildInfo) orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
