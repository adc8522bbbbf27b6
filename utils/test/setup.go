package test

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alpacahq/logappender/index"
	"github.com/alpacahq/logappender/segment"
)

const allowAllPerm = 0o777

// DummyRecord is the payload MakeDummyTopicDir writes at offset in partition.
func DummyRecord(partition, offset uint64) []byte {
	return []byte(fmt.Sprintf("partition-%d-record-%04d", partition, offset))
}

// MakeDummyTopicDir lays down "<root>/<topicName>/<p>/0.{log,index}" for
// partitions 0..numPartitions-1, each segment holding numRecords records.
func MakeDummyTopicDir(t *testing.T, root, topicName string, numPartitions, numRecords int) string {
	t.Helper()

	topicDir := filepath.Join(root, topicName)
	for p := 0; p < numPartitions; p++ {
		partDir := filepath.Join(topicDir, strconv.Itoa(p))
		require.Nil(t, os.MkdirAll(partDir, allowAllPerm))
		MakeDummySegment(t, partDir, uint64(p), 0, numRecords)
	}
	return topicDir
}

// MakeDummySegment writes segment segmentID under partDir holding numRecords
// DummyRecord payloads and closes it.
func MakeDummySegment(t *testing.T, partDir string, partitionID, segmentID uint64, numRecords int) {
	t.Helper()

	logName, indexName := segment.FileNames(segmentID)
	s, err := segment.New(partitionID, filepath.Join(partDir, logName), filepath.Join(partDir, indexName))
	require.Nil(t, err)
	for i := 0; i < numRecords; i++ {
		require.Nil(t, s.AppendOne(DummyRecord(partitionID, uint64(i))))
	}
	require.Nil(t, s.Close())
}

// WriteIndexFile writes entries to path in the index file format, bypassing
// any consistency checks, so that tests can build damaged segments.
func WriteIndexFile(t *testing.T, path string, entries []index.Entry) {
	t.Helper()

	buf := make([]byte, len(entries)*index.EntryWidth)
	for i, e := range entries {
		index.Encode(e, buf[i*index.EntryWidth:])
	}
	require.Nil(t, os.WriteFile(path, buf, 0o644))
}
