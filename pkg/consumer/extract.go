package consumer

import (
	"context"
	"fmt"

	"github.com/edenmgr/unidl/pkg/download"
	"github.com/edenmgr/unidl/pkg/extract"
	"github.com/edenmgr/unidl/pkg/logging"
)

// Extractor unpacks the downloaded archive into DestDir.
type Extractor struct {
	DestDir   string
	Overwrite bool
}

var _ Consumer = &Extractor{}

func (e *Extractor) Consume(ctx context.Context, path string, onProgress download.ProgressFunc) error {
	onProgress.Report(download.Progress{Phase: download.PhaseInstalling, Total: 100})
	opts := extract.Options{
		Overwrite: e.Overwrite,
		OnProgress: func(done, total int64) {
			onProgress.Report(percentOf(download.PhaseInstalling, done, total))
		},
	}
	if err := extract.File(ctx, path, e.DestDir, opts); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("error extracting file: %w", err)
	}
	logger := logging.GetLogger()
	logger.Info().Str("archive", path).Str("dest", e.DestDir).Msg("Extracted")
	return nil
}
