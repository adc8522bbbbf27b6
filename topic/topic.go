// Package topic organizes segments into partitions and partitions into named
// topics. On disk a topic is "<root>/<topic>/", holding one directory per
// partition named by its id, each holding "<segment_id>.log" and
// "<segment_id>.index" pairs.
package topic

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/alpacahq/logappender/segment"
	"github.com/alpacahq/logappender/utils/log"
)

// Config tunes a topic. Zero values select the defaults.
type Config struct {
	// MaxSegmentBytes is the size at which partitions roll their active segment.
	MaxSegmentBytes uint64
	// Partitioner routes Write calls. Defaults to DefaultPartitioner.
	Partitioner Partitioner
}

func (c Config) withDefaults() Config {
	if c.MaxSegmentBytes == 0 {
		c.MaxSegmentBytes = segment.MaxSegmentBytes
	}
	if c.Partitioner == nil {
		c.Partitioner = DefaultPartitioner{}
	}
	return c
}

// Topic owns the partitions of one named topic. Partition 0 always exists.
type Topic struct {
	sync.RWMutex

	name       string
	path       string
	cfg        Config
	partitions []*Partition
}

// OpenOrCreate opens the topic stored under "<rootDir>/<topicName>", recovering
// every partition found there, or creates it with partition 0 and that
// partition's first segment.
func OpenOrCreate(rootDir, topicName string, cfg Config) (*Topic, error) {
	if topicName == "" || topicName == "." || topicName == ".." || topicName != filepath.Base(topicName) {
		return nil, InvalidPathError(topicName)
	}
	t := &Topic{
		name: topicName,
		path: filepath.Join(rootDir, topicName),
		cfg:  cfg.withDefaults(),
	}

	fi, err := os.Stat(t.path)
	switch {
	case err == nil:
		if !fi.IsDir() {
			return nil, InvalidPathError(t.path)
		}
		if err := t.recover(); err != nil {
			return nil, err
		}
		log.Info("recovered topic %s with %d partitions", t.path, len(t.partitions))
		return t, nil
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(t.path, dirMode); err != nil {
			return nil, fmt.Errorf("create topic directory %s: %w", t.path, err)
		}
	default:
		return nil, fmt.Errorf("stat topic directory %s: %w", t.path, err)
	}

	p, err := NewPartition(t.path, 0, t.cfg.MaxSegmentBytes)
	if err != nil {
		return nil, err
	}
	if err := p.EnsureActiveSegment(); err != nil {
		_ = p.Close()
		return nil, err
	}
	t.partitions = []*Partition{p}
	log.Info("created topic %s", t.path)
	return t, nil
}

// recover rebuilds the partitions from the topic directory. Every entry must
// be a directory named by a partition id.
func (t *Topic) recover() error {
	entries, err := os.ReadDir(t.path)
	if err != nil {
		return fmt.Errorf("read topic directory %s: %w", t.path, err)
	}

	ids := make([]uint64, 0, len(entries))
	for _, e := range entries {
		entryPath := filepath.Join(t.path, e.Name())
		if !e.IsDir() {
			return InvalidPathError(entryPath)
		}
		id, err := strconv.ParseUint(e.Name(), 10, 64)
		if err != nil {
			return InvalidPathError(entryPath)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) == 0 || ids[0] != 0 {
		ids = append([]uint64{0}, ids...)
	}

	for _, id := range ids {
		p, err := NewPartition(t.path, id, t.cfg.MaxSegmentBytes)
		if err != nil {
			_ = t.closePartitions()
			return err
		}
		t.partitions = append(t.partitions, p)
	}
	if err := t.partitions[0].EnsureActiveSegment(); err != nil {
		_ = t.closePartitions()
		return err
	}
	return nil
}

// Write appends data as one record to the partition picked by the topic's
// Partitioner.
func (t *Topic) Write(data []byte) error {
	t.RLock()
	defer t.RUnlock()

	i := t.cfg.Partitioner.Partition(data, len(t.partitions))
	if i < 0 || i >= len(t.partitions) {
		return UnknownPartitionError(fmt.Sprintf("%s[%d]", t.name, i))
	}
	return t.partitions[i].WriteToSegment(data)
}

// WriteToPartition appends data to the partition with the given id.
func (t *Topic) WriteToPartition(partitionID uint64, data []byte) error {
	p, ok := t.Partition(partitionID)
	if !ok {
		return UnknownPartitionError(fmt.Sprintf("%s/%d", t.name, partitionID))
	}
	return p.WriteToSegment(data)
}

// AddPartition creates a partition whose id follows the highest existing one.
func (t *Topic) AddPartition() (*Partition, error) {
	t.Lock()
	defer t.Unlock()

	id := t.partitions[len(t.partitions)-1].ID() + 1
	p, err := NewPartition(t.path, id, t.cfg.MaxSegmentBytes)
	if err != nil {
		return nil, err
	}
	t.partitions = append(t.partitions, p)
	log.Info("added partition %d to topic %s", id, t.name)
	return p, nil
}

// Partition returns the partition with the given id.
func (t *Topic) Partition(partitionID uint64) (*Partition, bool) {
	t.RLock()
	defer t.RUnlock()

	i := sort.Search(len(t.partitions), func(i int) bool { return t.partitions[i].ID() >= partitionID })
	if i < len(t.partitions) && t.partitions[i].ID() == partitionID {
		return t.partitions[i], true
	}
	return nil, false
}

// Partitions returns the partitions ordered by id.
func (t *Topic) Partitions() []*Partition {
	t.RLock()
	defer t.RUnlock()
	return append([]*Partition(nil), t.partitions...)
}

func (t *Topic) Name() string {
	return t.name
}

func (t *Topic) Path() string {
	return t.path
}

// Close releases every segment of every partition.
func (t *Topic) Close() error {
	t.Lock()
	defer t.Unlock()
	return t.closePartitions()
}

func (t *Topic) closePartitions() error {
	var errs []error
	for _, p := range t.partitions {
		errs = append(errs, p.Close())
	}
	t.partitions = nil
	return errors.Join(errs...)
}
