package download

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseProgressLine(t *testing.T) {
	testCases := []struct {
		name     string
		line     string
		expected Progress
		ok       bool
	}{
		{
			name:     "readout",
			line:     "[#abc123 4.0MiB/10.0MiB(40%) CN:1 DL:2.5MiB ETA:3s]",
			expected: Progress{Phase: PhaseDownloading, Current: 40, Total: 100, Speed: "2.5MiB/s"},
			ok:       true,
		},
		{
			name:     "multiple connections",
			line:     "[#2b610d 0.9MiB/1.5MiB(58%) CN:8 DL:3.5MiB ETA:1s]",
			expected: Progress{Phase: PhaseDownloading, Current: 58, Total: 100, Speed: "3.5MiB/s"},
			ok:       true,
		},
		{
			name:     "integer speed in bytes",
			line:     "[#2b610d 0B/1.5MiB(0%) CN:1 DL:0B]",
			expected: Progress{Phase: PhaseDownloading, Current: 0, Total: 100, Speed: "0B/s"},
			ok:       true,
		},
		{
			name:     "over one hundred is clamped",
			line:     "[#2b610d 1.5MiB/1.5MiB(101%) CN:1 DL:9KiB]",
			expected: Progress{Phase: PhaseDownloading, Current: 100, Total: 100, Speed: "9KiB/s"},
			ok:       true,
		},
		{name: "summary header", line: "*** Download Progress Summary as of Mon Oct 19 10:00:00 2026 ***", ok: false},
		{name: "result table", line: "2b610d|OK  |   3.4MiB/s|/tmp/file.zip", ok: false},
		{name: "percent without speed", line: "[#2b610d 0.9MiB/1.5MiB(58%) CN:1]", ok: false},
		{name: "empty", line: "", ok: false},
		{name: "error line", line: "10/19 10:00:00 [ERROR] CUID#7 - Download aborted. URI=https://host/file.zip", ok: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, ok := ParseProgressLine(tc.line)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.expected, p)
			}
		})
	}
}

func TestTailBufferKeepsMostRecentLines(t *testing.T) {
	tail := newTailBuffer(3)
	assert.Empty(t, tail.Lines())

	for i := 1; i <= 5; i++ {
		tail.Add(fmt.Sprintf("line %d", i))
	}
	assert.Equal(t, []string{"line 3", "line 4", "line 5"}, tail.Lines())

	lines := tail.Lines()
	lines[0] = "mutated"
	assert.Equal(t, "line 3", tail.Lines()[0])
}

func TestScanOutputLinesSplitsOnCarriageReturn(t *testing.T) {
	var got []string
	for line := range readLines(strings.NewReader("first\r[#1 1MiB/2MiB(50%) CN:1 DL:1MiB]\r\nlast")) {
		got = append(got, line)
	}
	assert.Equal(t, []string{"first", "[#1 1MiB/2MiB(50%) CN:1 DL:1MiB]", "last"}, got)
}
