package gribio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var (
	zstdMagic   = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic   = []byte{0x1f, 0x8b}
	bzip2Magic  = []byte("BZh")
	snappyMagic = []byte("\xff\x06\x00\x00sNaPpY")
)

// decompress sniffs the head of r and returns a reader over the decompressed
// stream, with the name of the codec. Uncompressed streams are returned as
// is with an empty codec name.
func decompress(r io.Reader) (io.ReadCloser, string, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(snappyMagic))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, "", err
	}

	switch {
	case bytes.HasPrefix(head, zstdMagic):
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, "", fmt.Errorf("opening zstd stream: %w", err)
		}
		return newZstdReader(dec), "zstd", nil
	case bytes.HasPrefix(head, gzipMagic):
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, "", fmt.Errorf("opening gzip stream: %w", err)
		}
		return gr, "gzip", nil
	case bytes.HasPrefix(head, bzip2Magic):
		bz, err := bzip2.NewReader(br, nil)
		if err != nil {
			return nil, "", fmt.Errorf("opening bzip2 stream: %w", err)
		}
		return bz, "bzip2", nil
	case bytes.HasPrefix(head, snappyMagic):
		return io.NopCloser(snappy.NewReader(br)), "snappy", nil
	}
	return io.NopCloser(br), "", nil
}

// zstdReader implements [io.ReadCloser] for a [zstd.Decoder].
type zstdReader struct{ *zstd.Decoder }

func newZstdReader(dec *zstd.Decoder) io.ReadCloser {
	return &zstdReader{Decoder: dec}
}

// Close implements [io.Closer].
func (r *zstdReader) Close() error {
	r.Decoder.Close()
	return nil
}
