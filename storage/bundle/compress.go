package bundle

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the outer stream compression of a bundle.
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionZstd   Compression = "zstd"
	CompressionLZ4    Compression = "lz4"
	CompressionBrotli Compression = "brotli"
)

// ParseCompression accepts the names above; "" means none.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd, CompressionLZ4, CompressionBrotli:
		return Compression(s), nil
	default:
		return "", fmt.Errorf("bundle: unknown compression %q", s)
	}
}

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// nopCloser adapts an uncompressed writer.
type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// compressWriter wraps w. Closing the result flushes the compressor but does
// not close w.
func compressWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case "", CompressionNone:
		return nopCloser{w}, nil
	case CompressionZstd:
		return zstd.NewWriter(w)
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	case CompressionBrotli:
		return brotli.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("bundle: unknown compression %q", c)
	}
}

// decompressReader wraps r. An empty c detects the compression from the
// stream: zstd and lz4 frames carry magic numbers, a tar stream carries
// "ustar" at offset 257, and anything else is tried as brotli, which has no
// magic number.
func decompressReader(r io.Reader, c Compression) (io.Reader, func(), error) {
	if c == "" {
		br := bufio.NewReaderSize(r, 512)
		detected, err := detect(br)
		if err != nil {
			return nil, nil, err
		}
		c, r = detected, br
	}

	switch c {
	case CompressionNone:
		return r, func() {}, nil
	case CompressionZstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil
	case CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil
	case CompressionBrotli:
		return brotli.NewReader(r), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("bundle: unknown compression %q", c)
	}
}

func detect(br *bufio.Reader) (Compression, error) {
	head, err := br.Peek(262)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return "", err
	}
	switch {
	case bytes.HasPrefix(head, zstdMagic):
		return CompressionZstd, nil
	case bytes.HasPrefix(head, lz4Magic):
		return CompressionLZ4, nil
	case len(head) >= 262 && string(head[257:262]) == "ustar":
		return CompressionNone, nil
	case allZero(head):
		// An empty tar archive is only end-of-archive zero blocks.
		return CompressionNone, nil
	default:
		return CompressionBrotli, nil
	}
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
