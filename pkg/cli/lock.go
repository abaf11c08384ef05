package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"
	"github.com/mitchellh/hashstructure/v2"

	"github.com/edenmgr/unidl/pkg/logging"
)

var ErrTransferInProgress = errors.New("another transfer to this destination is in progress")

type lockKey struct {
	Dest string
}

// DestinationLock keeps a second process from writing the same destination concurrently.
type DestinationLock struct {
	lock *flock.Flock
}

// LockPath returns the lock file used for dest. It lives in the temp directory so that the lock
// never appears next to the download itself.
func LockPath(dest string) (string, error) {
	abs, err := filepath.Abs(dest)
	if err != nil {
		return "", fmt.Errorf("error resolving %s: %w", dest, err)
	}
	hash, err := hashstructure.Hash(lockKey{Dest: abs}, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("error hashing %s: %w", abs, err)
	}
	return filepath.Join(os.TempDir(), "unidl-"+strconv.FormatUint(hash, 16)+".lock"), nil
}

// LockDestination takes the destination's lock without blocking. It returns ErrTransferInProgress
// when another process holds it.
func LockDestination(dest string) (*DestinationLock, error) {
	logger := logging.GetLogger()
	path, err := LockPath(dest)
	if err != nil {
		return nil, err
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("error locking %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrTransferInProgress, dest)
	}
	logger.Debug().Str("dest", dest).Str("lock", path).Msg("Acquired destination lock")
	return &DestinationLock{lock: lock}, nil
}

func (l *DestinationLock) Release() error {
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("error unlocking %s: %w", l.lock.Path(), err)
	}
	if err := os.Remove(l.lock.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error removing %s: %w", l.lock.Path(), err)
	}
	return nil
}
