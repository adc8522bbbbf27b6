package topic

import "sync/atomic"

// Partitioner picks the partition a record is written to. It returns an
// index into the topic's partitions, which are ordered by id.
type Partitioner interface {
	Partition(data []byte, numPartitions int) int
}

// DefaultPartitioner sends every record to the first partition.
type DefaultPartitioner struct{}

func (DefaultPartitioner) Partition(_ []byte, _ int) int {
	return 0
}

// RoundRobinPartitioner spreads records over all partitions in turn.
type RoundRobinPartitioner struct {
	next atomic.Uint64
}

func (r *RoundRobinPartitioner) Partition(_ []byte, numPartitions int) int {
	if numPartitions <= 0 {
		return 0
	}
	n := r.next.Add(1) - 1
	return int(n % uint64(numPartitions))
}
