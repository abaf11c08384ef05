package download

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/edenmgr/unidl/pkg/config"
	"github.com/edenmgr/unidl/pkg/logging"
)

const (
	// ControlFileSuffix is appended to the destination for aria2c's resume bookkeeping file.
	ControlFileSuffix = ".aria2"

	outputTailLines = 20
	killWait        = 2 * time.Second
	// killed processes on some platforms hold file handles briefly after exiting
	releaseGrace  = 300 * time.Millisecond
	maxOutputLine = 64 * 1024
)

// ProcessBackend drives an external aria2c process and reads progress from its console output.
type ProcessBackend struct {
	Executable  string
	Verbose     bool
	DisableIPv6 bool
}

var _ Backend = &ProcessBackend{}

func NewProcessBackend(executable string, settings config.Settings) *ProcessBackend {
	return &ProcessBackend{
		Executable:  executable,
		Verbose:     settings.Verbose,
		DisableIPv6: settings.DisableIPv6,
	}
}

func (b *ProcessBackend) Name() string {
	return string(config.BackendExternalProcess)
}

// Args returns the aria2c argument list for one transfer. The directory and file name are passed
// as separate arguments and never through a shell.
func (b *ProcessBackend) Args(url, dest string) []string {
	consoleLevel := "warn"
	if b.Verbose {
		consoleLevel = "info"
	}
	args := []string{
		url,
		"-d", filepath.Dir(dest),
		"-o", filepath.Base(dest),
		"-j", "8",
		"-x", "8",
		"-s", "8",
		"-k", "1M",
		"--check-certificate=false",
		"--console-log-level=" + consoleLevel,
		"--summary-interval=1",
		"--allow-overwrite=true",
	}
	if b.DisableIPv6 {
		args = append(args, "--disable-ipv6=true")
	}
	return args
}

func (b *ProcessBackend) Fetch(ctx context.Context, url, dest string, onProgress ProgressFunc) error {
	logger := logging.GetLogger()
	if ctx.Err() != nil {
		return ErrCancelled
	}

	args := b.Args(url, dest)
	cmd := exec.Command(b.Executable, args...)
	hideWindow(cmd)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	// a grandchild holding the output pipe must not keep Wait from returning
	cmd.WaitDelay = killWait

	logger.Info().Str("executable", b.Executable).Strs("args", args).Msg("Starting external downloader")
	onProgress.Report(Progress{Phase: PhaseConnecting})
	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		return fmt.Errorf("failed to start %s: %w", b.Executable, err)
	}

	waitCh := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		_ = pw.Close()
		waitCh <- err
	}()
	lines := readLines(pr)

	tail := newTailBuffer(outputTailLines)
	var lastPercent int64
	for {
		select {
		case <-ctx.Done():
			return b.cancel(cmd, waitCh, lines, dest)
		case line, ok := <-lines:
			if !ok {
				// output ends only once Wait has returned
				return b.finish(ctx, url, dest, <-waitCh, tail, onProgress)
			}
			b.handleLine(line, tail, &lastPercent, onProgress)
		}
	}
}

func (b *ProcessBackend) handleLine(line string, tail *tailBuffer, lastPercent *int64, onProgress ProgressFunc) {
	logger := logging.GetLogger()
	if b.Verbose {
		logger.Info().Str("aria2c", line).Msg("Output")
	}
	if p, ok := ParseProgressLine(line); ok {
		if p.Current < *lastPercent {
			p.Current = *lastPercent
		}
		*lastPercent = p.Current
		onProgress.Report(p)
		return
	}
	tail.Add(line)
	if !b.Verbose {
		logger.Debug().Str("aria2c", line).Msg("Output")
	}
}

func (b *ProcessBackend) finish(ctx context.Context, url, dest string, waitErr error, tail *tailBuffer, onProgress ProgressFunc) error {
	logger := logging.GetLogger()
	if waitErr == nil {
		// a cancellation racing a clean exit loses: the file is complete
		onProgress.Report(Progress{Phase: PhaseDownloading, Current: 100, Total: 100})
		logger.Info().Str("url", url).Str("dest", dest).Msg("Complete")
		return nil
	}
	if ctx.Err() != nil {
		removePartial(dest+ControlFileSuffix, dest)
		return ErrCancelled
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	err := &ProcessExitError{ExitCode: exitCode, Output: tail.Lines()}
	logger.Error().
		Int("exit_code", exitCode).
		Str("output", err.Snippet()).
		Msg("External downloader failed")
	removePartial(dest+ControlFileSuffix, dest)
	return err
}

// cancel kills the process, waits a bounded time for it to exit, then removes the control file and
// the partial download.
func (b *ProcessBackend) cancel(cmd *exec.Cmd, waitCh chan error, lines <-chan string, dest string) error {
	logger := logging.GetLogger()
	logger.Info().Str("dest", dest).Msg("Cancelling external downloader")

	go func() {
		for range lines {
		}
	}()
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logger.Warn().Err(err).Msg("Failed to kill external downloader")
	}
	select {
	case <-waitCh:
	case <-time.After(killWait):
		logger.Warn().Dur("waited", killWait).Msg("External downloader did not exit after kill")
	}
	time.Sleep(releaseGrace)
	removePartial(dest+ControlFileSuffix, dest)
	return ErrCancelled
}

// readLines splits merged process output on both \n and \r, since aria2c redraws its readout with
// carriage returns. Blank lines are dropped. The channel is closed once the output ends.
func readLines(r io.Reader) chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 4096), maxOutputLine)
		scanner.Split(scanOutputLines)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				lines <- line
			}
		}
		// keep the writer from blocking if scanning stopped early
		_, _ = io.Copy(io.Discard, r)
	}()
	return lines
}

func scanOutputLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
