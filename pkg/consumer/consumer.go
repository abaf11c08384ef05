// Package consumer holds steps that run on a file after it has been downloaded.
package consumer

import (
	"context"

	"github.com/edenmgr/unidl/pkg/download"
)

// Consumer processes a completed download in place. It should report progress in its own phase and
// stop promptly when ctx is done.
type Consumer interface {
	Consume(ctx context.Context, path string, onProgress download.ProgressFunc) error
}
