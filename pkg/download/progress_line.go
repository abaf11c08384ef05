package download

import (
	"regexp"
	"strconv"
)

// aria2c readout, e.g. [#2b610d 0.9MiB/1.5MiB(58%) CN:1 DL:3.5MiB ETA:1s]
var progressLineRegexp = regexp.MustCompile(`\((\d+)%\).*?DL:([0-9.]+[a-zA-Z]+)`)

// ParseProgressLine extracts percent complete and download speed from one line of aria2c console
// output. The format is tied to aria2c's human readable readout, so keep every format assumption
// in here.
func ParseProgressLine(line string) (Progress, bool) {
	matches := progressLineRegexp.FindStringSubmatch(line)
	if matches == nil {
		return Progress{}, false
	}
	percent, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return Progress{}, false
	}
	if percent > 100 {
		percent = 100
	}
	return Progress{
		Phase:   PhaseDownloading,
		Current: percent,
		Total:   100,
		Speed:   matches[2] + "/s",
	}, true
}

// tailBuffer keeps the most recent lines of output.
type tailBuffer struct {
	lines []string
	size  int
}

func newTailBuffer(size int) *tailBuffer {
	return &tailBuffer{lines: make([]string, 0, size), size: size}
}

func (b *tailBuffer) Add(line string) {
	if len(b.lines) == b.size {
		copy(b.lines, b.lines[1:])
		b.lines = b.lines[:b.size-1]
	}
	b.lines = append(b.lines, line)
}

func (b *tailBuffer) Lines() []string {
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}
