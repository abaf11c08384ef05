package extract

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/edenmgr/unidl/pkg/logging"
)

const zipConcurrency = 4

// ZipFile extracts a zip archive into destDir. Directories are created first, then files are
// written concurrently. Progress is reported in entries.
func ZipFile(ctx context.Context, reader io.ReaderAt, size int64, destDir string, opts Options) error {
	logger := logging.GetLogger()
	zipReader, err := zip.NewReader(reader, size)
	if err != nil {
		return fmt.Errorf("error creating zip reader: %w", err)
	}

	total := int64(len(zipReader.File))
	var files []*zip.File
	var done int64
	for _, file := range zipReader.File {
		target, err := safeJoin(destDir, file.Name)
		if err != nil {
			return err
		}
		switch mode := file.Mode(); {
		case mode.IsDir():
			logger.Debug().Str("target", target).Msg("Zip: Directory")
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("error creating directory: %w", err)
			}
			if err := os.Chmod(target, cleanFileMode(mode.Perm())|0o700); err != nil {
				return fmt.Errorf("error setting permissions on %s: %w", target, err)
			}
			done++
			opts.report(done, total)
		case mode.IsRegular():
			files = append(files, file)
		default:
			return fmt.Errorf("unsupported file type (not dir or regular): %s (%s)", file.Name, mode.Type())
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(zipConcurrency)
	for _, file := range files {
		file := file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := extractZipEntry(gctx, file, destDir, opts.Overwrite); err != nil {
				return err
			}
			mu.Lock()
			done++
			opts.report(done, total)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("error extracting file: %w", err)
	}
	return nil
}

func extractZipEntry(ctx context.Context, file *zip.File, destDir string, overwrite bool) error {
	target, err := safeJoin(destDir, file.Name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}
	logger := logging.GetLogger()
	logger.Debug().Str("target", target).Str("perms", file.Mode().Perm().String()).Msg("Zip: File")

	zipFile, err := file.Open()
	if err != nil {
		return fmt.Errorf("error opening %s: %w", file.Name, err)
	}
	defer zipFile.Close()
	return writeFile(target, contextReader{ctx: ctx, reader: zipFile}, cleanFileMode(file.Mode().Perm()), overwrite)
}
