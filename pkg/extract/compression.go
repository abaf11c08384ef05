package extract

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4"
	"github.com/ulikunitz/xz"

	"github.com/edenmgr/unidl/pkg/logging"
)

const peekSize = 8

// Compression formats recognised in front of a tar stream.
const (
	FormatNone  = "none"
	FormatGzip  = "gzip"
	FormatBzip2 = "bzip2"
	FormatXZ    = "xz"
	FormatLZ4   = "lz4"
)

type magic struct {
	format string
	prefix []byte
}

var magics = []magic{
	{FormatXZ, []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}},
	{FormatLZ4, []byte{0x04, 0x22, 0x4D, 0x18}},
	{FormatGzip, []byte{0x1F, 0x8B}},
	{FormatBzip2, []byte{0x42, 0x5A, 0x68}},
}

// detectFormat names the compression format from the leading bytes of a stream.
func detectFormat(header []byte) string {
	for _, m := range magics {
		if bytes.HasPrefix(header, m.prefix) {
			return m.format
		}
	}
	return FormatNone
}

// decompress peeks at r and wraps it in the matching decompressor. Uncompressed input is returned
// as is.
func decompress(r io.Reader) (io.Reader, string, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(peekSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, "", fmt.Errorf("error reading archive header: %w", err)
	}
	format := detectFormat(header)
	logger := logging.GetLogger()
	logger.Debug().Str("type", format).Msg("Compression Format")

	switch format {
	case FormatGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, format, fmt.Errorf("error opening gzip stream: %w", err)
		}
		return gz, format, nil
	case FormatBzip2:
		return bzip2.NewReader(br), format, nil
	case FormatXZ:
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, format, fmt.Errorf("error opening xz stream: %w", err)
		}
		return xzr, format, nil
	case FormatLZ4:
		return lz4.NewReader(br), format, nil
	default:
		return br, format, nil
	}
}
