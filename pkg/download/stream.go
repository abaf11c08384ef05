package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/edenmgr/unidl/pkg/client"
	"github.com/edenmgr/unidl/pkg/config"
	"github.com/edenmgr/unidl/pkg/logging"
)

const (
	streamChunkSize = 64 * humanize.KiByte
	speedInterval   = 500 * time.Millisecond
)

// StreamBackend downloads with a single streaming GET request.
type StreamBackend struct {
	Client *http.Client
}

var _ Backend = &StreamBackend{}

func NewStreamBackend(settings config.Settings) *StreamBackend {
	return &StreamBackend{
		Client: client.NewHTTPClient(client.Options{
			ConnectTimeout: settings.ConnectTimeout,
			ReadTimeout:    settings.ReadTimeout,
			MaxRetries:     settings.MaxRetries,
			DisableIPv6:    settings.DisableIPv6,
		}),
	}
}

func (b *StreamBackend) Name() string {
	return string(config.BackendStreamingHTTP)
}

func (b *StreamBackend) Fetch(ctx context.Context, url, dest string, onProgress ProgressFunc) error {
	logger := logging.GetLogger()
	onProgress.Report(Progress{Phase: PhaseConnecting})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	resp, err := b.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		return fmt.Errorf("error executing request for %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("error downloading %s: %w", url, ErrUnexpectedHTTPStatus(resp.StatusCode))
	}
	if resp.Request != nil && resp.Request.URL.String() != url {
		logger.Debug().Str("url", url).Str("redirect_url", resp.Request.URL.String()).Msg("Redirect")
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", dest, err)
	}

	startTime := time.Now()
	written, err := copyChunks(ctx, out, resp.Body, resp.ContentLength, onProgress)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("error closing %s: %w", dest, closeErr)
	}
	if err != nil {
		removePartial(dest)
		if errors.Is(err, ErrCancelled) {
			logger.Info().Str("dest", dest).Str("received", humanize.IBytes(uint64(written))).Msg("Download cancelled")
			return ErrCancelled
		}
		return err
	}

	onProgress.Report(Progress{Phase: PhaseDownloading, Current: 100, Total: 100, Bytes: written})

	elapsed := time.Since(startTime)
	logger.Info().
		Str("url", url).
		Str("dest", dest).
		Str("size", humanize.IBytes(uint64(written))).
		Str("elapsed", fmt.Sprintf("%.3fs", elapsed.Seconds())).
		Str("throughput", formatSpeed(float64(written)/elapsed.Seconds())).
		Msg("Complete")
	return nil
}

// copyChunks streams body into w in fixed size chunks, checking for cancellation before every
// chunk. Speed is averaged over the whole transfer and recomputed at most every speedInterval.
func copyChunks(ctx context.Context, w io.Writer, body io.Reader, contentLength int64, onProgress ProgressFunc) (int64, error) {
	buf := make([]byte, streamChunkSize)
	var written int64
	var speed string

	startTime := time.Now()
	speedGate := &rate.Sometimes{Interval: speedInterval}
	// consume the gate's free first run so the first estimate covers a full interval
	speedGate.Do(func() {})

	for {
		if ctx.Err() != nil {
			return written, ErrCancelled
		}
		n, readErr := io.ReadFull(body, buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("error writing file: %w", err)
			}
			written += int64(n)
			speedGate.Do(func() {
				if elapsed := time.Since(startTime).Seconds(); elapsed > 0 {
					speed = formatSpeed(float64(written) / elapsed)
				}
			})
			onProgress.Report(chunkProgress(written, contentLength, speed))
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return written, ErrCancelled
			}
			return written, fmt.Errorf("error reading response body: %w", readErr)
		}
	}

	if contentLength > 0 && written != contentLength {
		return written, fmt.Errorf("%w: received %d of %d bytes", ErrShortBody, written, contentLength)
	}
	return written, nil
}

func chunkProgress(written, contentLength int64, speed string) Progress {
	p := Progress{Phase: PhaseDownloading, Speed: speed, Bytes: written}
	if contentLength > 0 {
		p.Current = written * 100 / contentLength
		if p.Current > 100 {
			p.Current = 100
		}
		p.Total = 100
	} else {
		p.Current = written
	}
	return p
}

func formatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}
	return humanize.IBytes(uint64(bytesPerSecond)) + "/s"
}
