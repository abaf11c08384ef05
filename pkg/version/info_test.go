package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeVersionString(t *testing.T) {
	tests := []struct {
		name       string
		version    string
		commitHash string
		prerelease string
		goos       string
		goarch     string
		expected   string
	}{
		{"unset", "", "", "", "linux", "amd64", "dev/linux-amd64"},
		{"release", "1.2.0", "abc123", "", "windows", "amd64", "1.2.0(abc123)/windows-amd64"},
		{"prerelease", "1.2.0", "abc123", "rc1", "darwin", "arm64", "1.2.0(abc123)-rc1/darwin-arm64"},
		{"no platform", "1.2.0", "", "", "", "", "1.2.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, makeVersionString(tt.version, tt.commitHash, tt.prerelease, tt.goos, tt.goarch))
		})
	}
}

func TestUserAgent(t *testing.T) {
	defer func() { Version = "" }()
	Version = "0.3.1"
	assert.Contains(t, UserAgent(), "unidl/0.3.1")
}
