package download

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/edenmgr/unidl/pkg/logging"
)

const (
	executableName = "aria2c"
	bundleSubdir   = "resources/bin"
)

// Resolver locates the external downloader for a platform (a runtime.GOOS value).
type Resolver interface {
	Resolve(platform string) (string, error)
}

// ExecutableResolver looks for aria2c on the search path first and then in the bundle directories.
type ExecutableResolver struct {
	BundleDirs []string
	// LookPath searches the system path; exec.LookPath when nil.
	LookPath func(file string) (string, error)
}

var _ Resolver = &ExecutableResolver{}

// NewExecutableResolver uses bundleDir when set. Otherwise the bundle is expected in resources/bin
// next to the running executable or under the working directory.
func NewExecutableResolver(bundleDir string) *ExecutableResolver {
	if bundleDir != "" {
		return &ExecutableResolver{BundleDirs: []string{bundleDir}}
	}
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Join(filepath.Dir(exe), bundleSubdir))
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, filepath.Join(cwd, bundleSubdir))
	}
	return &ExecutableResolver{BundleDirs: dirs}
}

func (r *ExecutableResolver) Resolve(platform string) (string, error) {
	logger := logging.GetLogger()
	name := executableName
	if platform == "windows" {
		name += ".exe"
	}

	lookPath := r.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if path, err := lookPath(name); err == nil {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		logger.Debug().Str("path", path).Msg("Using external downloader from search path")
		return path, nil
	}

	for _, dir := range r.BundleDirs {
		candidate := filepath.Join(dir, name)
		if abs, err := filepath.Abs(candidate); err == nil {
			candidate = abs
		}
		info, err := os.Stat(candidate)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Debug().Err(err).Str("path", candidate).Msg("Skipping bundled executable")
			}
			continue
		}
		if info.IsDir() {
			continue
		}
		if platform != "windows" && info.Mode().Perm()&0o111 == 0 {
			if err := os.Chmod(candidate, info.Mode().Perm()|0o755); err != nil {
				logger.Warn().Err(err).Str("path", candidate).Msg("Failed to make bundled executable runnable")
			} else {
				logger.Info().Str("path", candidate).Msg("Granted executable permission")
			}
		}
		logger.Debug().Str("path", candidate).Msg("Using bundled external downloader")
		return candidate, nil
	}
	return "", fmt.Errorf("%w: %s", ErrExecutableNotFound, name)
}
