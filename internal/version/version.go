// Package version provides build and version information for renderd.
package version

// Version is the current release version.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/patchmix/patchmix/internal/version.Version=x.y.z"
var Version = "0.3.0"
