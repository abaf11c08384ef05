package download

import (
	"context"
	"errors"
)

// Phase names the stage a transfer is in.
type Phase string

const (
	PhaseConnecting  Phase = "connecting"
	PhaseDownloading Phase = "downloading"
	PhaseInstalling  Phase = "installing"
	PhaseVerifying   Phase = "verifying"
)

// Progress is a point-in-time report. When the transfer size is known Current and Total are a
// percentage (Total == 100). Otherwise Current counts bytes received and Total is 0.
type Progress struct {
	Phase   Phase
	Current int64
	Total   int64
	Speed   string
	// Bytes written to disk so far, when the backend can observe it.
	Bytes int64
}

// Percent returns the completion percentage, or false when the size is unknown.
func (p Progress) Percent() (int64, bool) {
	if p.Total <= 0 {
		return 0, false
	}
	return p.Current * 100 / p.Total, true
}

// ProgressFunc receives progress reports. It is called from the transfer goroutine and must
// return quickly.
type ProgressFunc func(Progress)

// Report calls f when it is set.
func (f ProgressFunc) Report(p Progress) {
	if f != nil {
		f(p)
	}
}

// Backend is one transport strategy.
type Backend interface {
	Name() string
	Fetch(ctx context.Context, url, dest string, onProgress ProgressFunc) error
}

// Fetcher downloads url to dest. A nil error means dest is complete; ErrCancelled means the
// context ended the transfer.
type Fetcher interface {
	DownloadFile(ctx context.Context, url, dest string, onProgress ProgressFunc) error
}

// Outcome is the terminal result of one download request.
type Outcome struct {
	Success   bool
	Cancelled bool
	// Path of the downloaded file, set on success.
	Path string
	// Message is a single human readable diagnostic, set on failure.
	Message string
}

// OutcomeFromError maps the error returned by a download onto its Outcome.
func OutcomeFromError(dest string, err error) Outcome {
	switch {
	case err == nil:
		return Outcome{Success: true, Path: dest}
	case errors.Is(err, ErrCancelled):
		return Outcome{Cancelled: true, Message: ErrCancelled.Error()}
	default:
		return Outcome{Message: err.Error()}
	}
}
