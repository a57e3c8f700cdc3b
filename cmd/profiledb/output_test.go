package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/profiledb/pkg/runs"
)

func TestReadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"main()": {"ct": 1, "wt": 42}}`), 0o644))

	profile, err := readProfile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, runs.Profile{runs.MainFrame: {"ct": 1, "wt": 42}}, profile)

	profile, err = readProfile("-", strings.NewReader(`{"a==>b": {"wt": 1}}`))
	require.NoError(t, err)
	assert.Len(t, profile, 1)

	_, err = readProfile("-", strings.NewReader(`{}`))
	require.Error(t, err)

	_, err = readProfile("-", strings.NewReader(`[1, 2]`))
	require.Error(t, err)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "1.5ms", wallTime(1500))
	assert.Equal(t, "0s", wallTime(0))
	assert.Equal(t, "4KiB", memory(4096))
	assert.Equal(t, "1970-01-01T00:00:00Z", unixTime(0))
}

func TestRender(t *testing.T) {
	defer func(prev string) { outputFormat = prev }(outputFormat)

	var buf bytes.Buffer

	outputFormat = outputTable
	ok, err := render(&buf, map[string]string{"id": "x"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, buf.String())

	outputFormat = outputJSON
	ok, err = render(&buf, map[string]string{"id": "x"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"id": "x"}`, buf.String())

	buf.Reset()

	outputFormat = outputYAML
	ok, err = render(&buf, map[string]string{"id": "x"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "id: x\n", buf.String())

	assert.False(t, isValidOutput("xml"))
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, table(&buf, []string{"A", "BB"}, [][]string{{"xxx", "y"}}))
	assert.Equal(t, "A    BB\nxxx  y\n", buf.String())
}
