package storage

import (
	"bytes"
	"fmt"
	"io"
)

// Blob is a binary column value. Scanning always yields a private,
// fully materialized copy of the data.
type Blob []byte

// Scan implements sql.Scanner.
func (b *Blob) Scan(src any) error {
	data, err := ReadBinary(src)
	if err != nil {
		return err
	}

	*b = data

	return nil
}

// ReadBinary materializes a binary column value into a byte slice. Drivers
// may hand out byte slices they later reuse, strings, or stream handles;
// streams are drained completely (and closed when possible).
func ReadBinary(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.Clone(val), nil
	case string:
		return []byte(val), nil
	case io.Reader:
		data, err := io.ReadAll(val)

		if closer, ok := val.(io.Closer); ok {
			if cerr := closer.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}

		if err != nil {
			return nil, fmt.Errorf("reading binary stream: %w", err)
		}

		return data, nil
	default:
		return nil, fmt.Errorf("unsupported binary column type %T", v)
	}
}
