package root

import (
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/edenmgr/unidl/pkg/download"
	"github.com/edenmgr/unidl/pkg/logging"
)

const progressLogInterval = time.Second

// progressReporter logs progress at most once per interval, plus every phase change and
// completion. It is only called from the task's worker goroutine.
type progressReporter struct {
	dest  string
	gate  *rate.Sometimes
	phase download.Phase
}

func newProgressReporter(dest string) *progressReporter {
	return &progressReporter{dest: dest, gate: &rate.Sometimes{Interval: progressLogInterval}}
}

func (r *progressReporter) Report(p download.Progress) {
	phaseChanged := p.Phase != r.phase
	r.phase = p.Phase
	logged := false
	r.gate.Do(func() {
		r.log(p)
		logged = true
	})
	if percent, ok := p.Percent(); !logged && (phaseChanged || (ok && percent >= 100)) {
		r.log(p)
	}
}

func (r *progressReporter) log(p download.Progress) {
	logger := logging.GetLogger()
	event := logger.Info().Str("dest", r.dest).Str("phase", string(p.Phase))
	if percent, ok := p.Percent(); ok {
		event = event.Int64("percent", percent)
	} else if p.Current > 0 {
		event = event.Str("received", humanize.IBytes(uint64(p.Current)))
	}
	if p.Speed != "" {
		event = event.Str("speed", p.Speed)
	}
	event.Msg("Progress")
}
