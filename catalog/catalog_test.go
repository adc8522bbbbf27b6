package catalog_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpacahq/logappender/catalog"
	"github.com/alpacahq/logappender/utils/test"
)

func setup(t *testing.T) (rootDir string, catalogDir *catalog.Directory) {
	t.Helper()

	rootDir = t.TempDir()
	test.MakeDummyTopicDir(t, rootDir, "orders", 3, 5)
	test.MakeDummyTopicDir(t, rootDir, "events", 2, 1)
	catalogDir, err := catalog.NewDirectory(rootDir)
	if err != nil {
		t.Fatal("failed to create a catalog dir.err=" + err.Error())
	}

	return rootDir, catalogDir
}

func TestTopicNames(t *testing.T) {
	_, catalogDir := setup(t)

	assert.Equal(t, []string{"events", "orders"}, catalogDir.TopicNames())
}

func TestGatherPartitions(t *testing.T) {
	_, catalogDir := setup(t)

	parts := catalogDir.GatherPartitions()
	require.Len(t, parts, 5)
	assert.Equal(t, "events", parts[0].Topic)
	assert.Equal(t, "orders", parts[4].Topic)
	assert.Equal(t, uint64(2), parts[4].ID)
}

func TestGatherSegments(t *testing.T) {
	rootDir, catalogDir := setup(t)

	segs := catalogDir.GatherSegments()
	require.Len(t, segs, 5)
	for _, sf := range segs {
		assert.True(t, sf.HasLog)
		assert.True(t, sf.HasIndex)
		assert.Equal(t, uint64(0), sf.ID)
	}

	orders, err := catalogDir.GetTopic("orders")
	require.Nil(t, err)
	sf := orders.Partitions[1].Segments[0]
	assert.Equal(t, filepath.Join(rootDir, "orders", "1", "0.log"), sf.LogPath)
	assert.Equal(t, filepath.Join(rootDir, "orders", "1", "0.index"), sf.IndexPath)
	assert.Equal(t, int64(5*32), sf.IndexSize)
	assert.Equal(t, int64(5*len(test.DummyRecord(1, 0))), sf.LogSize)
}

func TestSkippedEntries(t *testing.T) {
	rootDir, _ := setup(t)

	stray := []string{
		filepath.Join(rootDir, "README"),
		filepath.Join(rootDir, "orders", "notes"),
		filepath.Join(rootDir, "orders", "0", "old.log"),
		filepath.Join(rootDir, "orders", "0", "0.tmp"),
	}
	for _, p := range stray {
		require.Nil(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	catalogDir, err := catalog.NewDirectory(rootDir)
	require.Nil(t, err)
	assert.ElementsMatch(t, stray, catalogDir.Skipped())
	assert.Len(t, catalogDir.GatherSegments(), 5)
}

func TestOrphanFilesAreListed(t *testing.T) {
	rootDir, _ := setup(t)
	partDir := filepath.Join(rootDir, "events", "0")
	require.Nil(t, os.WriteFile(filepath.Join(partDir, "7.index"), nil, 0o644))
	require.Nil(t, os.WriteFile(filepath.Join(partDir, "3.log"), []byte("abc"), 0o644))

	catalogDir, err := catalog.NewDirectory(rootDir)
	require.Nil(t, err)
	events, err := catalogDir.GetTopic("events")
	require.Nil(t, err)

	segs := events.Partitions[0].Segments
	require.Len(t, segs, 3)
	assert.Equal(t, []uint64{0, 3, 7}, []uint64{segs[0].ID, segs[1].ID, segs[2].ID})
	assert.True(t, segs[1].HasLog)
	assert.False(t, segs[1].HasIndex)
	assert.Equal(t, int64(3), segs[1].LogSize)
	assert.False(t, segs[2].HasLog)
	assert.True(t, segs[2].HasIndex)
}

func TestRefresh(t *testing.T) {
	rootDir, catalogDir := setup(t)

	test.MakeDummyTopicDir(t, rootDir, "audit", 1, 2)
	assert.Len(t, catalogDir.TopicNames(), 2)
	require.Nil(t, catalogDir.Refresh())
	assert.Equal(t, []string{"audit", "events", "orders"}, catalogDir.TopicNames())
}

func TestNewDirectoryErrors(t *testing.T) {
	_, err := catalog.NewDirectory(filepath.Join(t.TempDir(), "missing"))
	var nf catalog.NotFoundError
	assert.True(t, errors.As(err, &nf))

	file := filepath.Join(t.TempDir(), "file")
	require.Nil(t, os.WriteFile(file, nil, 0o644))
	_, err = catalog.NewDirectory(file)
	var nd catalog.NotADirectoryError
	assert.True(t, errors.As(err, &nd))

	_, catalogDir := setup(t)
	_, err = catalogDir.GetTopic("nope")
	assert.True(t, errors.As(err, &nf))
}

func TestEmptyRoot(t *testing.T) {
	catalogDir, err := catalog.NewDirectory(t.TempDir())
	require.Nil(t, err)
	assert.Empty(t, catalogDir.TopicNames())
	assert.Empty(t, catalogDir.GatherSegments())
	assert.Equal(t, "", catalogDir.String())
}
