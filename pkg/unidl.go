package unidl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/edenmgr/unidl/pkg/config"
	"github.com/edenmgr/unidl/pkg/download"
	"github.com/edenmgr/unidl/pkg/logging"
)

// Downloader picks a transport for each request and falls back to the built-in HTTP transport once
// when the external downloader fails.
type Downloader struct {
	Settings config.Settings
	Resolver download.Resolver
	// Stream is the built-in transport, used directly or as the fallback.
	Stream download.Backend
	// NewProcess builds the external transport around a resolved executable.
	NewProcess func(executable string) download.Backend
	// Platform is passed to the resolver, runtime.GOOS by default.
	Platform string
}

var _ download.Fetcher = &Downloader{}

func NewDownloader(settings config.Settings, resolver download.Resolver) *Downloader {
	return &Downloader{
		Settings: settings,
		Resolver: resolver,
		Stream:   download.NewStreamBackend(settings),
		NewProcess: func(executable string) download.Backend {
			return download.NewProcessBackend(executable, settings)
		},
		Platform: runtime.GOOS,
	}
}

// DownloadFile downloads url to dest, creating dest's directory first. A nil error means dest holds
// the complete file and download.ErrCancelled means ctx ended the transfer. Either way the caller
// sees a non-decreasing percentage, including across a fallback.
func (d *Downloader) DownloadFile(ctx context.Context, url, dest string, onProgress download.ProgressFunc) error {
	logger := logging.GetLogger()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("error creating destination directory: %w", err)
	}
	progress := monotonic(onProgress)

	if primary := d.externalBackend(); primary != nil {
		err := primary.Fetch(ctx, url, dest, progress)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, download.ErrCancelled) {
			return download.ErrCancelled
		}
		logger.Warn().
			Err(err).
			Str("url", url).
			Str("backend", primary.Name()).
			Str("fallback", d.Stream.Name()).
			Msg("Download failed, retrying with fallback")
	}

	err := d.Stream.Fetch(ctx, url, dest, progress)
	if errors.Is(err, download.ErrCancelled) {
		return download.ErrCancelled
	}
	return err
}

// externalBackend returns nil unless the settings prefer the external downloader and it can be
// found.
func (d *Downloader) externalBackend() download.Backend {
	if d.Settings.Backend != config.BackendExternalProcess || d.Resolver == nil || d.NewProcess == nil {
		return nil
	}
	platform := d.Platform
	if platform == "" {
		platform = runtime.GOOS
	}
	executable, err := d.Resolver.Resolve(platform)
	if err != nil {
		logger := logging.GetLogger()
		logger.Info().Err(err).Msg("External downloader unavailable, using built-in HTTP")
		return nil
	}
	return d.NewProcess(executable)
}

// monotonic holds percentages at their running maximum so a fallback restarting from zero does not
// move the caller's progress backwards.
func monotonic(onProgress download.ProgressFunc) download.ProgressFunc {
	if onProgress == nil {
		return nil
	}
	var highest int64
	return func(p download.Progress) {
		if p.Phase == download.PhaseDownloading && p.Total == 100 {
			if p.Current < highest {
				p.Current = highest
			}
			highest = p.Current
		}
		onProgress(p)
	}
}
