package version

import (
	"fmt"
	"runtime"
)

const devVersion = "dev"

var (
	// Build-time injected via -ldflags "-X github.com/edenmgr/unidl/pkg/version.Version=..."
	Version    string
	CommitHash string
	BuildTime  string
	Prerelease string
)

// GetVersion returns the version string shown by `unidl version` and sent in the User-Agent.
func GetVersion() string {
	return makeVersionString(Version, CommitHash, Prerelease, runtime.GOOS, runtime.GOARCH)
}

// UserAgent is the User-Agent header value used by the built-in HTTP transport.
func UserAgent() string {
	return fmt.Sprintf("unidl/%s", GetVersion())
}

func makeVersionString(version, commitHash, prerelease, goos, goarch string) string {
	if version == "" {
		version = devVersion
	}
	versionString := version
	if commitHash != "" {
		versionString = fmt.Sprintf("%s(%s)", versionString, commitHash)
	}
	if prerelease != "" {
		versionString = fmt.Sprintf("%s-%s", versionString, prerelease)
	}
	if goos != "" && goarch != "" {
		versionString = fmt.Sprintf("%s/%s-%s", versionString, goos, goarch)
	}
	return versionString
}
