package consumer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/edenmgr/unidl/pkg/download"
	"github.com/edenmgr/unidl/pkg/logging"
)

const hashChunkSize = 1 * humanize.MiByte

var ErrChecksumMismatch = errors.New("checksum mismatch")

// SHA256Verifier compares the downloaded file against an expected hex digest.
type SHA256Verifier struct {
	Expected string
}

var _ Consumer = &SHA256Verifier{}

func (v *SHA256Verifier) Consume(ctx context.Context, path string, onProgress download.ProgressFunc) error {
	expected := strings.ToLower(strings.TrimSpace(v.Expected))
	if _, err := hex.DecodeString(expected); err != nil || len(expected) != sha256.Size*2 {
		return fmt.Errorf("invalid sha256 digest %q", v.Expected)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("error reading %s: %w", path, err)
	}

	hasher := sha256.New()
	buf := make([]byte, hashChunkSize)
	var hashed int64
	onProgress.Report(download.Progress{Phase: download.PhaseVerifying, Total: 100})
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := f.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
			hashed += int64(n)
			onProgress.Report(percentOf(download.PhaseVerifying, hashed, info.Size()))
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return fmt.Errorf("error reading %s: %w", path, readErr)
		}
	}

	actual := hex.EncodeToString(hasher.Sum(nil))
	if actual != expected {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, expected, actual)
	}
	logger := logging.GetLogger()
	logger.Info().Str("path", path).Str("sha256", actual).Msg("Checksum verified")
	return nil
}

func percentOf(phase download.Phase, done, total int64) download.Progress {
	if total <= 0 {
		return download.Progress{Phase: phase, Current: 100, Total: 100}
	}
	current := done * 100 / total
	if current > 100 {
		current = 100
	}
	return download.Progress{Phase: phase, Current: current, Total: 100}
}
