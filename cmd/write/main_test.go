package write

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpacahq/logappender/topic"
)

func TestReadLines(t *testing.T) {
	lines, err := ReadLines(strings.NewReader("a\nbb\r\n\nccc"))
	require.Nil(t, err)
	assert.Equal(t, []string{"a", "bb", "", "ccc"}, lines)
}

func TestOpenTopicAddsPartitions(t *testing.T) {
	rootDir := filepath.Join(t.TempDir(), "data")

	tp, err := OpenTopic(rootDir, "orders", 3, topic.Config{})
	require.Nil(t, err)
	assert.Len(t, tp.Partitions(), 3)
	require.Nil(t, tp.Close())

	tp, err = OpenTopic(rootDir, "orders", 1, topic.Config{})
	require.Nil(t, err)
	defer tp.Close()
	assert.Len(t, tp.Partitions(), 3)
}

func TestExecuteWrite(t *testing.T) {
	rootDir := t.TempDir()
	out := &bytes.Buffer{}
	Cmd.SetOut(out)
	Cmd.SetIn(strings.NewReader("from-stdin-1\nfrom-stdin-2\n"))

	Cmd.SetArgs([]string{"--dir", rootDir, "--topic", "orders", "--partitions", "2", "--partition", "1"})
	require.Nil(t, Cmd.Execute())
	assert.Contains(t, out.String(), "appended 2 records")

	tp, err := topic.OpenOrCreate(rootDir, "orders", topic.Config{})
	require.Nil(t, err)
	defer tp.Close()
	p1, ok := tp.Partition(1)
	require.True(t, ok)
	data, ok, err := p1.Read(0, 1)
	require.Nil(t, err)
	require.True(t, ok)
	assert.Equal(t, "from-stdin-2", string(data))
}
