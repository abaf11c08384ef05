// Package extract unpacks downloaded archives: zip files and tar streams, optionally compressed
// with gzip, bzip2, xz or lz4.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edenmgr/unidl/pkg/logging"
)

var (
	ErrZipSlip         = errors.New("archive contains file outside of target directory")
	ErrEmptyHeaderName = errors.New("archive contains entry with empty name")
)

var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// ProgressFunc reports extraction progress as done out of total units.
type ProgressFunc func(done, total int64)

type Options struct {
	// Overwrite replaces files that already exist in the destination.
	Overwrite  bool
	OnProgress ProgressFunc
}

func (o Options) report(done, total int64) {
	if o.OnProgress != nil {
		o.OnProgress(done, total)
	}
}

// File extracts the archive at path into destDir. Zip archives are recognised by their signature,
// anything else is read as a possibly compressed tar stream.
func File(ctx context.Context, path, destDir string, opts Options) error {
	logger := logging.GetLogger()
	startTime := time.Now()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening archive: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("error reading archive: %w", err)
	}

	header := make([]byte, len(zipMagic))
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("error reading archive: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("error reading archive: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("error creating destination directory: %w", err)
	}

	kind := "tar"
	if bytes.Equal(header[:n], zipMagic) {
		kind = "zip"
		err = ZipFile(ctx, f, info.Size(), destDir, opts)
	} else {
		counter := &countingReader{reader: f, total: info.Size(), opts: opts}
		err = TarFile(ctx, counter, destDir, opts)
		if err == nil {
			// trailing record padding
			_, err = io.Copy(io.Discard, counter)
		}
	}
	if err != nil {
		return err
	}
	logger.Debug().
		Str("extractor", kind).
		Str("dest", destDir).
		Float64("elapsed_time", time.Since(startTime).Seconds()).
		Msg("Extract complete")
	return nil
}

// countingReader reports how much of the compressed input a tar extraction has consumed.
type countingReader struct {
	reader io.Reader
	read   int64
	total  int64
	opts   Options
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	if n > 0 {
		c.read += int64(n)
		c.opts.report(c.read, c.total)
	}
	return n, err
}

// contextReader fails reads once ctx is done so long entries stop promptly.
type contextReader struct {
	ctx    context.Context
	reader io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.reader.Read(p)
}

// safeJoin resolves an entry name inside destDir, refusing names that escape it.
func safeJoin(destDir, name string) (string, error) {
	if name == "" {
		return "", ErrEmptyHeaderName
	}
	destAbs, err := filepath.Abs(destDir)
	if err != nil {
		return "", fmt.Errorf("error getting absolute path of %s: %w", destDir, err)
	}
	target := filepath.Join(destAbs, name)
	if target != destAbs && !strings.HasPrefix(target, destAbs+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: `%s` outside of `%s`", ErrZipSlip, name, destAbs)
	}
	return target, nil
}

// cleanFileMode drops setuid, setgid and sticky bits.
func cleanFileMode(mode os.FileMode) os.FileMode {
	return mode &^ (os.ModeSticky | os.ModeSetuid | os.ModeSetgid)
}

func openFlags(overwrite bool) int {
	flags := os.O_CREATE | os.O_WRONLY
	if overwrite {
		return flags | os.O_TRUNC
	}
	return flags | os.O_EXCL
}
