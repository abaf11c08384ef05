package unidl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/edenmgr/unidl/pkg/consumer"
	"github.com/edenmgr/unidl/pkg/download"
	"github.com/edenmgr/unidl/pkg/logging"
)

// Getter downloads a file and then runs each consumer on it in order. When a consumer fails or is
// cancelled the downloaded file is removed.
type Getter struct {
	Downloader download.Fetcher
	Consumers  []consumer.Consumer
}

var _ download.Fetcher = &Getter{}

func (g *Getter) DownloadFile(ctx context.Context, url, dest string, onProgress download.ProgressFunc) error {
	logger := logging.GetLogger()
	startTime := time.Now()
	if err := g.Downloader.DownloadFile(ctx, url, dest, onProgress); err != nil {
		return err
	}
	downloadElapsed := time.Since(startTime)

	for _, c := range g.Consumers {
		err := ctx.Err()
		if err == nil {
			err = c.Consume(ctx, dest, onProgress)
		}
		if err != nil {
			discard(dest)
			if ctx.Err() != nil || errors.Is(err, download.ErrCancelled) {
				return download.ErrCancelled
			}
			return fmt.Errorf("error processing %s: %w", dest, err)
		}
	}

	event := logger.Info().Str("dest", dest)
	if info, err := os.Stat(dest); err == nil {
		event = event.Str("size", humanize.IBytes(uint64(info.Size())))
	}
	event.
		Str("download_elapsed", fmt.Sprintf("%.3fs", downloadElapsed.Seconds())).
		Str("total_elapsed", fmt.Sprintf("%.3fs", time.Since(startTime).Seconds())).
		Msg("Complete")
	return nil
}

func discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger := logging.GetLogger()
		logger.Warn().Err(err).Str("path", path).Msg("Failed to remove download")
	}
}
