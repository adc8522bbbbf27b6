package topic_test

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpacahq/logappender/index"
	"github.com/alpacahq/logappender/metrics"
	"github.com/alpacahq/logappender/segment"
	"github.com/alpacahq/logappender/topic"
	"github.com/alpacahq/logappender/utils/test"
)

func openTopic(t *testing.T, rootDir, name string, cfg topic.Config) *topic.Topic {
	t.Helper()

	tp, err := topic.OpenOrCreate(rootDir, name, cfg)
	require.Nil(t, err)
	t.Cleanup(func() { _ = tp.Close() })
	return tp
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()

	fi, err := os.Stat(path)
	require.Nil(t, err)
	return fi.Size()
}

func TestCreateTopicScenario(t *testing.T) {
	rootDir := t.TempDir()
	tp := openTopic(t, rootDir, "orders", topic.Config{})

	partDir := filepath.Join(rootDir, "orders", "0")
	fi, err := os.Stat(partDir)
	require.Nil(t, err)
	assert.True(t, fi.IsDir())
	assert.Equal(t, int64(0), fileSize(t, filepath.Join(partDir, "0.log")))
	assert.Equal(t, int64(0), fileSize(t, filepath.Join(partDir, "0.index")))

	require.Len(t, tp.Partitions(), 1)
	active := tp.Partitions()[0].ActiveSegment()
	require.NotNil(t, active)
	assert.Equal(t, uint64(0), active.ID())
	assert.Equal(t, "orders", tp.Name())
}

func TestWriteGoesToPartitionZero(t *testing.T) {
	rootDir := t.TempDir()
	tp := openTopic(t, rootDir, "orders", topic.Config{})
	_, err := tp.AddPartition()
	require.Nil(t, err)

	require.Nil(t, tp.Write([]byte("this is some data")))

	p0, ok := tp.Partition(0)
	require.True(t, ok)
	assert.Equal(t, uint64(1), p0.ActiveSegment().Records())

	p1, ok := tp.Partition(1)
	require.True(t, ok)
	assert.Nil(t, p1.ActiveSegment())

	data, ok, err := p0.Read(0, 0)
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("this is some data"), data)
}

func TestRolloverCreatesNextSegment(t *testing.T) {
	rootDir := t.TempDir()
	tp := openTopic(t, rootDir, "orders", topic.Config{})

	record := bytes.Repeat([]byte("x"), 100)
	for i := 0; i < 11; i++ {
		require.Nil(t, tp.Write(record))
	}

	p, _ := tp.Partition(0)
	sealed := p.SealedSegments()
	require.Len(t, sealed, 1)
	assert.Equal(t, uint64(0), sealed[0].ID())
	assert.Equal(t, uint64(10), sealed[0].Records())
	assert.Equal(t, uint64(1000), sealed[0].BytesConsumed())
	assert.True(t, sealed[0].Sealed())

	active := p.ActiveSegment()
	assert.Equal(t, uint64(1), active.ID())
	assert.Equal(t, uint64(1), active.Records())

	e, ok := active.GetIndexForOffset(0)
	require.True(t, ok)
	assert.Equal(t, index.Entry{Offset: 0, Position: 0, Size: 100}, e)

	partDir := filepath.Join(rootDir, "orders", "0")
	assert.Equal(t, int64(1000), fileSize(t, filepath.Join(partDir, "0.log")))
	assert.Equal(t, int64(100), fileSize(t, filepath.Join(partDir, "1.log")))
	assert.Equal(t, int64(index.EntryWidth), fileSize(t, filepath.Join(partDir, "1.index")))

	// nothing more may land in the sealed segment
	var se segment.SealedError
	assert.True(t, errors.As(sealed[0].AppendOne([]byte("late")), &se))
}

func TestRolloverHonoursConfiguredLimit(t *testing.T) {
	tp := openTopic(t, t.TempDir(), "small", topic.Config{MaxSegmentBytes: 10})

	for i := 0; i < 6; i++ {
		require.Nil(t, tp.Write([]byte("abcd")))
	}

	p, _ := tp.Partition(0)
	assert.Len(t, p.SealedSegments(), 2)
	assert.Equal(t, uint64(2), p.ActiveSegment().ID())
	for _, s := range append(p.SealedSegments(), p.ActiveSegment()) {
		assert.LessOrEqual(t, s.BytesConsumed(), uint64(10))
	}
}

func TestOversizedRecordOnEmptySegment(t *testing.T) {
	tp := openTopic(t, t.TempDir(), "big", topic.Config{MaxSegmentBytes: 8})

	require.Nil(t, tp.Write(bytes.Repeat([]byte("y"), 20)))
	require.Nil(t, tp.Write([]byte("z")))

	p, _ := tp.Partition(0)
	require.Len(t, p.SealedSegments(), 1)
	assert.Equal(t, uint64(20), p.SealedSegments()[0].BytesConsumed())
	assert.Equal(t, uint64(1), p.ActiveSegment().ID())
}

func TestReopenAfterRollover(t *testing.T) {
	rootDir := t.TempDir()

	tp, err := topic.OpenOrCreate(rootDir, "orders", topic.Config{MaxSegmentBytes: 10})
	require.Nil(t, err)
	for i := 0; i < 5; i++ {
		require.Nil(t, tp.Write([]byte(fmt.Sprintf("record-%d", i))))
	}
	require.Nil(t, tp.Close())

	reopened := openTopic(t, rootDir, "orders", topic.Config{MaxSegmentBytes: 10})
	p, ok := reopened.Partition(0)
	require.True(t, ok)
	require.Len(t, p.SealedSegments(), 4)
	assert.Equal(t, uint64(4), p.ActiveSegment().ID())

	require.Nil(t, reopened.Write([]byte("record-5")))
	assert.Equal(t, uint64(5), p.ActiveSegment().ID())

	for i := uint64(0); i <= 5; i++ {
		data, ok, err := p.Read(i, 0)
		require.Nil(t, err)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("record-%d", i), string(data))
	}
}

func TestRecoverExistingTree(t *testing.T) {
	rootDir := t.TempDir()
	test.MakeDummyTopicDir(t, rootDir, "events", 3, 4)

	tp := openTopic(t, rootDir, "events", topic.Config{})
	parts := tp.Partitions()
	require.Len(t, parts, 3)
	for i, p := range parts {
		assert.Equal(t, uint64(i), p.ID())
		active := p.ActiveSegment()
		require.NotNil(t, active)
		assert.Equal(t, uint64(4), active.Records())

		data, ok, err := p.Read(0, 3)
		require.Nil(t, err)
		require.True(t, ok)
		assert.Equal(t, test.DummyRecord(uint64(i), 3), data)
	}

	require.Nil(t, tp.Write([]byte("next")))
	e, ok := parts[0].ActiveSegment().GetIndexForOffset(4)
	require.True(t, ok)
	assert.Equal(t, uint64(4), e.Offset)
}

func TestRecoverRejectsInvalidEntries(t *testing.T) {
	type testCase struct {
		setup func(t *testing.T, topicDir string)
	}
	tests := map[string]testCase{
		"ng/ a regular file in the topic directory": {
			setup: func(t *testing.T, topicDir string) {
				require.Nil(t, os.WriteFile(filepath.Join(topicDir, "README"), []byte("x"), 0o644))
			},
		},
		"ng/ a non-numeric partition directory": {
			setup: func(t *testing.T, topicDir string) {
				require.Nil(t, os.Mkdir(filepath.Join(topicDir, "p1"), 0o755))
			},
		},
		"ng/ a non-numeric segment file": {
			setup: func(t *testing.T, topicDir string) {
				require.Nil(t, os.MkdirAll(filepath.Join(topicDir, "0"), 0o755))
				require.Nil(t, os.WriteFile(filepath.Join(topicDir, "0", "old.log"), nil, 0o644))
			},
		},
	}

	for name := range tests {
		tt := tests[name]
		t.Run(name, func(t *testing.T) {
			rootDir := t.TempDir()
			topicDir := filepath.Join(rootDir, "broken")
			require.Nil(t, os.Mkdir(topicDir, 0o755))
			tt.setup(t, topicDir)

			_, err := topic.OpenOrCreate(rootDir, "broken", topic.Config{})
			var pe topic.InvalidPathError
			assert.True(t, errors.As(err, &pe))
		})
	}
}

func TestFailedRecoveryReleasesSegments(t *testing.T) {
	rootDir := t.TempDir()
	topicDir := filepath.Join(rootDir, "orders")
	require.Nil(t, os.MkdirAll(filepath.Join(topicDir, "1"), 0o755))
	test.MakeDummySegment(t, filepath.Join(topicDir, "1"), 1, 0, 3)
	test.MakeDummySegment(t, filepath.Join(topicDir, "1"), 1, 1, 2)
	// partition 0 has no segment and segment 0 can not be created
	require.Nil(t, os.MkdirAll(filepath.Join(topicDir, "0", "0.log"), 0o755))

	before := testutil.ToFloat64(metrics.OpenSegments)
	tp, err := topic.OpenOrCreate(rootDir, "orders", topic.Config{})
	assert.Nil(t, tp)
	var fe *segment.FileError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, before, testutil.ToFloat64(metrics.OpenSegments))

	require.Nil(t, os.Remove(filepath.Join(topicDir, "0", "0.log")))
	tp = openTopic(t, rootDir, "orders", topic.Config{})
	assert.Len(t, tp.Partitions(), 2)
	assert.Equal(t, before+3, testutil.ToFloat64(metrics.OpenSegments))
}

func TestOpenOrCreateRejectsBadNames(t *testing.T) {
	for _, name := range []string{"", "a/b", ".."} {
		_, err := topic.OpenOrCreate(t.TempDir(), name, topic.Config{})
		var pe topic.InvalidPathError
		assert.True(t, errors.As(err, &pe), name)
	}
}

func TestRoundRobinPartitioner(t *testing.T) {
	tp := openTopic(t, t.TempDir(), "rr", topic.Config{Partitioner: &topic.RoundRobinPartitioner{}})
	_, err := tp.AddPartition()
	require.Nil(t, err)
	_, err = tp.AddPartition()
	require.Nil(t, err)

	for i := 0; i < 9; i++ {
		require.Nil(t, tp.Write([]byte{byte(i)}))
	}
	for _, p := range tp.Partitions() {
		assert.Equal(t, uint64(3), p.ActiveSegment().Records())
	}
}

func TestWriteToUnknownPartition(t *testing.T) {
	tp := openTopic(t, t.TempDir(), "orders", topic.Config{})

	err := tp.WriteToPartition(7, []byte("x"))
	var ue topic.UnknownPartitionError
	assert.True(t, errors.As(err, &ue))
}

func TestConcurrentWritersKeepOffsetsDense(t *testing.T) {
	tp := openTopic(t, t.TempDir(), "orders", topic.Config{MaxSegmentBytes: 256})

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				assert.Nil(t, tp.Write([]byte(fmt.Sprintf("w%d-%03d", w, i))))
			}
		}(w)
	}
	wg.Wait()

	p, _ := tp.Partition(0)
	var total uint64
	for _, s := range append(p.SealedSegments(), p.ActiveSegment()) {
		var pos uint64
		for i, e := range s.Entries() {
			assert.Equal(t, uint64(i), e.Offset)
			assert.Equal(t, pos, e.Position)
			pos += e.Size
		}
		assert.Equal(t, pos, s.BytesConsumed())
		total += s.Records()
	}
	assert.Equal(t, uint64(writers*perWriter), total)
}
