package dump

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpacahq/logappender/index"
	"github.com/alpacahq/logappender/utils/test"
)

func TestLoadRows(t *testing.T) {
	rootDir := t.TempDir()
	test.MakeDummyTopicDir(t, rootDir, "orders", 1, 3)
	idxPath := filepath.Join(rootDir, "orders", "0", "0.index")
	recordLen := uint64(len(test.DummyRecord(0, 0)))

	rows, err := LoadRows(idxPath, true)
	require.Nil(t, err)
	require.Len(t, rows, 3)
	for i, r := range rows {
		assert.Equal(t, uint64(i), r.Offset)
		assert.Equal(t, uint64(i)*recordLen, r.Position)
		assert.Equal(t, recordLen, r.Size)
		assert.Equal(t, string(test.DummyRecord(0, uint64(i))), r.Record)
	}

	rows, err = LoadRows(idxPath, false)
	require.Nil(t, err)
	assert.Equal(t, "", rows[2].Record)
}

func TestLoadRowsMissingIndex(t *testing.T) {
	_, err := LoadRows(filepath.Join(t.TempDir(), "0.index"), false)
	assert.NotNil(t, err)
}

func TestLoadRowsEntryPastDataFile(t *testing.T) {
	dir := t.TempDir()
	require.Nil(t, os.WriteFile(filepath.Join(dir, "0.log"), []byte("a"), 0o644))
	idxPath := filepath.Join(dir, "0.index")

	for name, e := range map[string]index.Entry{
		"ng/ huge size":            {Offset: 0, Position: 0, Size: 1 << 62},
		"ng/ size wraps past zero": {Offset: 0, Position: 2, Size: math.MaxUint64},
	} {
		t.Run(name, func(t *testing.T) {
			test.WriteIndexFile(t, idxPath, []index.Entry{e})

			_, err := LoadRows(idxPath, true)
			assert.NotNil(t, err)

			rows, err := LoadRows(idxPath, false)
			require.Nil(t, err)
			assert.Equal(t, e.Size, rows[0].Size)
		})
	}
}

func TestExecuteDumpCSV(t *testing.T) {
	rootDir := t.TempDir()
	test.MakeDummyTopicDir(t, rootDir, "orders", 1, 2)

	out := &bytes.Buffer{}
	Cmd.SetOut(out)
	Cmd.SetArgs([]string{"--index", filepath.Join(rootDir, "orders", "0", "0.index"), "--records", "--format", "csv"})
	require.Nil(t, Cmd.Execute())

	var rows []*Row
	require.Nil(t, gocsv.UnmarshalString(out.String(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, string(test.DummyRecord(0, 1)), rows[1].Record)
}

func TestPrintTable(t *testing.T) {
	out := &bytes.Buffer{}
	require.Nil(t, printTable(out, []*Row{{Offset: 0, Position: 0, Size: 3, Record: "abc"}}, true))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "OFFSET")
	assert.Contains(t, lines[1], `"abc"`)
}
