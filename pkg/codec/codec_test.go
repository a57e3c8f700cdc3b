package codec_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/profiledb/pkg/codec"
)

type callGraph map[string]map[string]int64

func sampleGraph() callGraph {
	return callGraph{
		"main()":               {"ct": 1, "wt": 120034, "cpu": 110000, "mu": 2048, "pmu": 4096},
		"main()==>load_config": {"ct": 3, "wt": 532, "cpu": 500, "mu": 128, "pmu": 0},
		"load_config==>file_get_contents": {
			"ct": 3, "wt": 210, "cpu": 200, "mu": 64, "pmu": 9223372036854775807,
		},
	}
}

func TestNew(t *testing.T) {
	for _, format := range []string{codec.FormatJSON, codec.FormatMsgpack} {
		c, err := codec.New(format)
		require.NoError(t, err)
		assert.Equal(t, format, c.Name())
	}

	_, err := codec.New("php")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported serialization format")
}

func TestPackUnpack_RoundTrip(t *testing.T) {
	for _, format := range []string{codec.FormatJSON, codec.FormatMsgpack} {
		t.Run(format, func(t *testing.T) {
			c, err := codec.New(format)
			require.NoError(t, err)

			in := sampleGraph()

			packed, err := codec.Pack(c, in)
			require.NoError(t, err)

			var out callGraph
			require.NoError(t, codec.Unpack(c, packed, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestPackUnpack_EmptyGraph(t *testing.T) {
	for _, format := range []string{codec.FormatJSON, codec.FormatMsgpack} {
		t.Run(format, func(t *testing.T) {
			c, err := codec.New(format)
			require.NoError(t, err)

			packed, err := codec.Pack(c, callGraph{})
			require.NoError(t, err)

			var out callGraph
			require.NoError(t, codec.Unpack(c, packed, &out))
			assert.Empty(t, out)
		})
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	in := map[string]any{
		"user":  "alice",
		"token": "abc123",
	}

	for _, format := range []string{codec.FormatJSON, codec.FormatMsgpack} {
		t.Run(format, func(t *testing.T) {
			c, err := codec.New(format)
			require.NoError(t, err)

			raw, err := c.Marshal(in)
			require.NoError(t, err)

			var out map[string]any
			require.NoError(t, c.Unmarshal(raw, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestSnapshotNumbersMatchAcrossCodecs(t *testing.T) {
	// Snapshots reach the store decoded from a JSON request body.
	var in map[string]any
	require.NoError(t, json.Unmarshal([]byte(
		`{"page":2,"ratio":0.5,"ids":[1,2],"filter":{"min":10,"on":true},"q":"x"}`,
	), &in))

	decoded := make(map[string]map[string]any)

	for _, format := range []string{codec.FormatJSON, codec.FormatMsgpack} {
		t.Run(format, func(t *testing.T) {
			c, err := codec.New(format)
			require.NoError(t, err)

			raw, err := c.Marshal(in)
			require.NoError(t, err)

			var out map[string]any
			require.NoError(t, c.Unmarshal(raw, &out))

			assert.Equal(t, in, out)
			assert.IsType(t, float64(0), out["page"])
			assert.Equal(t, float64(2), out["page"])
			assert.Equal(t, []any{float64(1), float64(2)}, out["ids"])
			assert.Equal(t, map[string]any{"min": float64(10), "on": true}, out["filter"])

			decoded[format] = out
		})
	}

	assert.Equal(t, decoded[codec.FormatJSON], decoded[codec.FormatMsgpack])
}

func TestUnmarshal_LargeIntegersStayExact(t *testing.T) {
	c, err := codec.New(codec.FormatJSON)
	require.NoError(t, err)

	var out callGraph
	require.NoError(t, c.Unmarshal(
		[]byte(`{"main()":{"pmu":9223372036854775807,"wt":9007199254740993}}`), &out,
	))

	assert.Equal(t, int64(9223372036854775807), out["main()"]["pmu"])
	assert.Equal(t, int64(9007199254740993), out["main()"]["wt"])
}

func TestUnpack_CorruptData(t *testing.T) {
	c, err := codec.New(codec.FormatJSON)
	require.NoError(t, err)

	var out callGraph

	t.Run("not zlib", func(t *testing.T) {
		err := codec.Unpack(c, []byte("definitely not compressed"), &out)
		require.Error(t, err)
		assert.ErrorIs(t, err, codec.ErrDecode)
	})

	t.Run("truncated stream", func(t *testing.T) {
		packed, err := codec.Pack(c, sampleGraph())
		require.NoError(t, err)

		err = codec.Unpack(c, packed[:len(packed)/2], &out)
		require.Error(t, err)
		assert.ErrorIs(t, err, codec.ErrDecode)
	})

	t.Run("format mismatch", func(t *testing.T) {
		mp, err := codec.New(codec.FormatMsgpack)
		require.NoError(t, err)

		packed, err := codec.Pack(mp, sampleGraph())
		require.NoError(t, err)

		err = codec.Unpack(c, packed, &out)
		require.Error(t, err)
		assert.ErrorIs(t, err, codec.ErrDecode)
	})
}

func TestCompress_Deterministic(t *testing.T) {
	data := bytes.Repeat([]byte("main()==>strlen "), 512)

	a, err := codec.Compress(data)
	require.NoError(t, err)

	b, err := codec.Compress(data)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Less(t, len(a), len(data))

	out, err := codec.Decompress(a)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}
