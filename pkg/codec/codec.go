// Package codec implements the serialization strategies used for stored
// run payloads and request snapshots, plus the compression applied to
// profile payloads.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrDecode is returned when stored data cannot be decompressed or
// deserialized. It indicates corrupted or format-mismatched data.
var ErrDecode = errors.New("decode failed")

const (
	// FormatJSON selects the JSON codec.
	FormatJSON = "json"
	// FormatMsgpack selects the binary MessagePack codec.
	FormatMsgpack = "msgpack"
)

// Codec serializes values to bytes and back.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// New returns the codec registered under format.
func New(format string) (Codec, error) {
	switch format {
	case FormatJSON:
		return jsonCodec{}, nil
	case FormatMsgpack:
		return msgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported serialization format %q", format)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return FormatJSON }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes untyped numbers as float64, matching what msgpack yields
// for values that arrived as JSON.
func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: json: %w", ErrDecode, err)
	}

	return nil
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return FormatMsgpack }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer

	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: msgpack: %w", ErrDecode, err)
	}

	return nil
}

// Pack serializes v with c and compresses the result.
func Pack(c Codec, v any) ([]byte, error) {
	raw, err := c.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serializing with %s: %w", c.Name(), err)
	}

	return Compress(raw)
}

// Unpack decompresses data and deserializes it into v with c.
func Unpack(c Codec, data []byte, v any) error {
	raw, err := Decompress(data)
	if err != nil {
		return err
	}

	return c.Unmarshal(raw, v)
}
