package download

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/edenmgr/unidl/pkg/logging"
)

const (
	removeAttempts = 3
	removeBackoff  = 200 * time.Millisecond
)

var removeFile = os.Remove

// removePartial deletes partially written files. Deletion is retried a bounded number of times
// while the file is still locked, since a killed process may release its handles late. Any other
// error gives up at once. Failures are logged and otherwise ignored.
func removePartial(paths ...string) {
	logger := logging.GetLogger()
	for _, path := range paths {
		removed := false
		op := func() error {
			err := removeFile(path)
			switch {
			case err == nil:
				removed = true
				return nil
			case errors.Is(err, fs.ErrNotExist):
				return nil
			case isLocked(err):
				return err
			default:
				return backoff.Permanent(err)
			}
		}
		policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(removeBackoff), removeAttempts-1)
		if err := backoff.Retry(op, policy); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Failed to remove partial download")
			continue
		}
		if removed {
			logger.Debug().Str("path", path).Msg("Cleaned up partial download")
		}
	}
}

func isLocked(err error) bool {
	return errors.Is(err, fs.ErrPermission) || isHandleHeld(err)
}
