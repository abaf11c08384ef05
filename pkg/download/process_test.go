package download

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edenmgr/unidl/pkg/config"
)

// fakeAria2c writes a shell script that stands in for aria2c. The script sees the same argv as the
// real tool, so $3 is the directory and $5 the file name.
func fakeAria2c(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "aria2c")
	script := "#!/bin/sh\ndir=\"$3\"\nname=\"$5\"\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestProcessBackendArgs(t *testing.T) {
	dest := filepath.Join("downloads", "my firmware", "prod.keys")
	backend := &ProcessBackend{Executable: "aria2c"}
	assert.Equal(t, []string{
		"https://host/prod.keys",
		"-d", filepath.Join("downloads", "my firmware"),
		"-o", "prod.keys",
		"-j", "8", "-x", "8", "-s", "8", "-k", "1M",
		"--check-certificate=false",
		"--console-log-level=warn",
		"--summary-interval=1",
		"--allow-overwrite=true",
	}, backend.Args("https://host/prod.keys", dest))

	backend = NewProcessBackend("aria2c", config.Settings{Verbose: true, DisableIPv6: true})
	args := backend.Args("https://host/prod.keys", dest)
	assert.Contains(t, args, "--console-log-level=info")
	assert.Equal(t, "--disable-ipv6=true", args[len(args)-1])
	assert.Equal(t, "external-process", backend.Name())
}

func TestProcessBackendSuccess(t *testing.T) {
	exe := fakeAria2c(t, `
printf '%s\n' "$@" > "$dir/args.txt"
printf '[#abc123 4.0MiB/10.0MiB(40%%) CN:1 DL:2.5MiB ETA:3s]\r'
printf '[#abc123 3.0MiB/10.0MiB(30%%) CN:1 DL:1.1MiB ETA:3s]\n'
printf 'Download complete: %s/%s\n' "$dir" "$name"
printf 'payload' > "$dir/$name"
exit 0`)
	dir := filepath.Join(t.TempDir(), "with space")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	dest := filepath.Join(dir, "file.zip")

	var events []Progress
	backend := &ProcessBackend{Executable: exe}
	err := backend.Fetch(context.Background(), "https://host/file.zip", dest, collect(&events))
	require.NoError(t, err)

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))

	args, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	require.NoError(t, err)
	assert.Equal(t, strings.Join(backend.Args("https://host/file.zip", dest), "\n")+"\n", string(args))

	assert.Equal(t, []Progress{
		{Phase: PhaseConnecting},
		{Phase: PhaseDownloading, Current: 40, Total: 100, Speed: "2.5MiB/s"},
		{Phase: PhaseDownloading, Current: 40, Total: 100, Speed: "1.1MiB/s"},
		{Phase: PhaseDownloading, Current: 100, Total: 100},
	}, events)
}

func TestProcessBackendVerboseForwardsEveryLine(t *testing.T) {
	exe := fakeAria2c(t, `
printf '[#abc123 4.0MiB/10.0MiB(40%%) CN:1 DL:2.5MiB ETA:3s]\n'
echo 'notice line'
printf 'payload' > "$dir/$name"
exit 0`)
	dest := filepath.Join(t.TempDir(), "file.zip")

	var buf bytes.Buffer
	previous, previousLevel := log.Logger, zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	t.Cleanup(func() {
		log.Logger = previous
		zerolog.SetGlobalLevel(previousLevel)
	})

	var events []Progress
	backend := &ProcessBackend{Executable: exe, Verbose: true}
	require.NoError(t, backend.Fetch(context.Background(), "https://host/file.zip", dest, collect(&events)))

	output := buf.String()
	assert.Contains(t, output, `(40%) CN:1 DL:2.5MiB ETA:3s]`)
	assert.Contains(t, output, `"aria2c":"notice line"`)
	assert.Contains(t, events, Progress{Phase: PhaseDownloading, Current: 40, Total: 100, Speed: "2.5MiB/s"})
}

func TestProcessBackendExitFailure(t *testing.T) {
	exe := fakeAria2c(t, `
printf 'partial' > "$dir/$name"
printf 'control' > "$dir/$name.aria2"
i=1
while [ $i -le 25 ]; do
  echo "notice $i"
  i=$((i+1))
done
echo "[ERROR] Download aborted. errorCode=1" >&2
exit 1`)
	dest := filepath.Join(t.TempDir(), "file.zip")

	err := (&ProcessBackend{Executable: exe}).Fetch(context.Background(), "https://host/file.zip", dest, nil)
	var exitErr *ProcessExitError
	require.ErrorAs(t, err, &exitErr)
	assert.NotErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 1, exitErr.ExitCode)
	require.Len(t, exitErr.Output, outputTailLines)
	assert.Equal(t, "notice 7", exitErr.Output[0])
	assert.Equal(t, "[ERROR] Download aborted. errorCode=1", exitErr.Output[outputTailLines-1])
	assert.Contains(t, err.Error(), "errorCode=1")

	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+ControlFileSuffix)
}

func TestProcessBackendCancel(t *testing.T) {
	testCases := []struct {
		name   string
		script string
		cancel func(cancel context.CancelFunc) ProgressFunc
	}{
		{
			name: "while reporting",
			script: `
printf 'partial' > "$dir/$name"
printf 'control' > "$dir/$name.aria2"
printf '[#abc123 1.0MiB/10.0MiB(10%%) CN:1 DL:2.5MiB ETA:3s]\n'
exec sleep 30`,
			cancel: func(cancel context.CancelFunc) ProgressFunc {
				return func(p Progress) {
					if p.Phase == PhaseDownloading {
						cancel()
					}
				}
			},
		},
		{
			name: "while silent",
			script: `
printf 'partial' > "$dir/$name"
printf 'control' > "$dir/$name.aria2"
exec sleep 30`,
			cancel: func(cancel context.CancelFunc) ProgressFunc {
				go func() {
					time.Sleep(200 * time.Millisecond)
					cancel()
				}()
				return nil
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			exe := fakeAria2c(t, tc.script)
			dest := filepath.Join(t.TempDir(), "file.zip")
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			start := time.Now()
			err := (&ProcessBackend{Executable: exe}).Fetch(ctx, "https://host/file.zip", dest, tc.cancel(cancel))
			assert.ErrorIs(t, err, ErrCancelled)
			assert.Less(t, time.Since(start), 10*time.Second)
			assert.NoFileExists(t, dest)
			assert.NoFileExists(t, dest+ControlFileSuffix)
		})
	}
}

func TestProcessBackendAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := (&ProcessBackend{Executable: "/nonexistent/aria2c"}).Fetch(ctx, "https://host/file.zip", filepath.Join(t.TempDir(), "f"), nil)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestProcessBackendSpawnFailure(t *testing.T) {
	var events []Progress
	exe := filepath.Join(t.TempDir(), "missing-aria2c")
	err := (&ProcessBackend{Executable: exe}).Fetch(context.Background(), "https://host/file.zip", filepath.Join(t.TempDir(), "f"), collect(&events))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCancelled)
	assert.Contains(t, err.Error(), "failed to start")
}
