package download

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemovePartial(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "file.zip")
	require.NoError(t, os.WriteFile(dest, []byte("partial"), 0o644))
	require.NoError(t, os.WriteFile(dest+ControlFileSuffix, []byte("control"), 0o644))

	removePartial(dest+ControlFileSuffix, dest, filepath.Join(dir, "never-created"))

	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+ControlFileSuffix)
}

func TestRemovePartialGivesUp(t *testing.T) {
	dir := t.TempDir()
	// removing a non-empty directory fails every attempt
	busy := filepath.Join(dir, "busy")
	require.NoError(t, os.MkdirAll(filepath.Join(busy, "child"), 0o755))

	removePartial(busy)
	assert.DirExists(t, busy)
}

func stubRemove(t *testing.T, err error) *int {
	t.Helper()
	calls := 0
	previous := removeFile
	removeFile = func(string) error {
		calls++
		return err
	}
	t.Cleanup(func() { removeFile = previous })
	return &calls
}

func TestRemovePartialRetries(t *testing.T) {
	testCases := []struct {
		name  string
		err   error
		calls int
	}{
		{"locked file is retried", &fs.PathError{Op: "remove", Path: "file.zip", Err: fs.ErrPermission}, removeAttempts},
		{"other errors give up at once", &fs.PathError{Op: "remove", Path: "file.zip", Err: errors.New("read-only file system")}, 1},
		{"missing file is done", &fs.PathError{Op: "remove", Path: "file.zip", Err: fs.ErrNotExist}, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			calls := stubRemove(t, tc.err)
			removePartial("file.zip")
			assert.Equal(t, tc.calls, *calls)
		})
	}
}
