package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// CompressionLevel is the fixed zlib level applied to stored payloads.
const CompressionLevel = 2

// Compress deflates data into a zlib stream.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := zlib.NewWriterLevel(&buf, CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("creating zlib writer: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("compressing: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("flushing zlib writer: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress inflates a zlib stream produced by Compress.
func Decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib header: %w", ErrDecode, err)
	}
	defer func() { _ = r.Close() }()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: inflating: %w", ErrDecode, err)
	}

	return out, nil
}
