// Package buildinfo holds version metadata set at link time with
// -ldflags "-X github.com/modoterra/rndrwatch/internal/buildinfo.Version=...".
package buildinfo

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
