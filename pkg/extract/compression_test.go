package extract

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/pierrec/lz4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name   string
		input  []byte
		expect string
	}{
		{"GZIP", []byte{0x1f, 0x8b, 0x08}, FormatGzip},
		{"BZIP2", []byte{0x42, 0x5a, 0x68, 0x39}, FormatBzip2},
		{"XZ", []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}, FormatXZ},
		{"LZ4", []byte{0x04, 0x22, 0x4d, 0x18, 0x64}, FormatLZ4},
		{"Less than 2 bytes", []byte{0x1f}, FormatNone},
		{"Plain tar", []byte("file1.t"), FormatNone},
		{"UNKNOWN", []byte{0xde, 0xad}, FormatNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, detectFormat(tt.input))
		})
	}
}

func TestDecompress(t *testing.T) {
	payload := bytes.Repeat([]byte("firmware "), 1000)
	compressors := map[string]func(io.Writer) io.WriteCloser{
		FormatGzip: func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) },
		FormatLZ4:  func(w io.Writer) io.WriteCloser { return lz4.NewWriter(w) },
		FormatXZ: func(w io.Writer) io.WriteCloser {
			xw, err := xz.NewWriter(w)
			require.NoError(t, err)
			return xw
		},
	}
	for format, newWriter := range compressors {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			w := newWriter(&buf)
			_, err := w.Write(payload)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, detected, err := decompress(&buf)
			require.NoError(t, err)
			assert.Equal(t, format, detected)
			out, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, payload, out)
		})
	}

	t.Run("short plain input", func(t *testing.T) {
		r, detected, err := decompress(bytes.NewReader([]byte("abc")))
		require.NoError(t, err)
		assert.Equal(t, FormatNone, detected)
		out, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "abc", string(out))
	})
}
