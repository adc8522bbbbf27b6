package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/alpacahq/logappender/index"
	"github.com/alpacahq/logappender/segment"
	"github.com/alpacahq/logappender/utils/log"
)

// Directory is a read-only picture of the storage tree under a root
// directory, laid out as "<root>/<topic>/<partition>/<segment>.{log,index}".
// Entries that do not fit the layout are recorded as skipped instead of
// failing the scan.
type Directory struct {
	sync.RWMutex

	rootPath string
	// topics[Key]: Key is the topic name, which is also its directory name
	topics  map[string]*TopicDir
	skipped []string
}

type TopicDir struct {
	Name       string
	Path       string
	Partitions []*PartitionDir
}

type PartitionDir struct {
	Topic    string
	ID       uint64
	Path     string
	Segments []*SegmentFiles
}

// SegmentFiles describes the file pair of one segment. Either file may be
// missing; HasLog and HasIndex report which ones were found.
type SegmentFiles struct {
	Topic       string
	PartitionID uint64
	ID          uint64
	LogPath     string
	IndexPath   string
	LogSize     int64
	IndexSize   int64
	HasLog      bool
	HasIndex    bool
}

// NewDirectory scans files under the rootPath and returns a new Directory.
// - returns NotFoundError when rootPath does not exist,
// - returns NotADirectoryError when rootPath is a regular file,
// - returns an error in other unexpected cases.
func NewDirectory(rootPath string) (*Directory, error) {
	d := &Directory{rootPath: filepath.Clean(rootPath)}
	if err := d.load(); err != nil {
		return nil, err
	}
	return d, nil
}

// Refresh rescans the root directory.
func (d *Directory) Refresh() error {
	return d.load()
}

func (d *Directory) load() error {
	fi, err := os.Stat(d.rootPath)
	if err != nil {
		if os.IsNotExist(err) {
			return NotFoundError(d.rootPath)
		}
		return fmt.Errorf("stat root directory %s: %w", d.rootPath, err)
	}
	if !fi.IsDir() {
		return NotADirectoryError(d.rootPath)
	}

	topics := make(map[string]*TopicDir)
	var skipped []string
	dirlist, err := os.ReadDir(d.rootPath)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", d.rootPath, err)
	}
	for _, entry := range dirlist {
		leafPath := filepath.Join(d.rootPath, entry.Name())
		if !entry.IsDir() {
			skipped = append(skipped, leafPath)
			continue
		}
		td, sk, err := loadTopic(entry.Name(), leafPath)
		if err != nil {
			return err
		}
		topics[td.Name] = td
		skipped = append(skipped, sk...)
	}
	for _, sk := range skipped {
		log.Warn("%s does not belong to the storage layout and will be ignored", sk)
	}

	d.Lock()
	d.topics = topics
	d.skipped = skipped
	d.Unlock()
	return nil
}

func loadTopic(name, topicPath string) (*TopicDir, []string, error) {
	td := &TopicDir{Name: name, Path: topicPath}
	var skipped []string

	dirlist, err := os.ReadDir(topicPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read dir %s: %w", topicPath, err)
	}
	for _, entry := range dirlist {
		leafPath := filepath.Join(topicPath, entry.Name())
		id, err := strconv.ParseUint(entry.Name(), 10, 64)
		if !entry.IsDir() || err != nil {
			skipped = append(skipped, leafPath)
			continue
		}
		pd, sk, err := loadPartition(name, id, leafPath)
		if err != nil {
			return nil, nil, err
		}
		td.Partitions = append(td.Partitions, pd)
		skipped = append(skipped, sk...)
	}
	sort.Slice(td.Partitions, func(i, j int) bool { return td.Partitions[i].ID < td.Partitions[j].ID })
	return td, skipped, nil
}

func loadPartition(topicName string, partitionID uint64, partitionPath string) (*PartitionDir, []string, error) {
	pd := &PartitionDir{Topic: topicName, ID: partitionID, Path: partitionPath}
	var skipped []string

	dirlist, err := os.ReadDir(partitionPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read dir %s: %w", partitionPath, err)
	}
	byID := make(map[uint64]*SegmentFiles)
	for _, entry := range dirlist {
		leafPath := filepath.Join(partitionPath, entry.Name())
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != segment.FileExt && ext != index.FileExt) {
			skipped = append(skipped, leafPath)
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSuffix(entry.Name(), ext), 10, 64)
		if err != nil {
			skipped = append(skipped, leafPath)
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, nil, fmt.Errorf("stat %s: %w", leafPath, err)
		}

		sf, ok := byID[id]
		if !ok {
			logName, indexName := segment.FileNames(id)
			sf = &SegmentFiles{
				Topic:       topicName,
				PartitionID: partitionID,
				ID:          id,
				LogPath:     filepath.Join(partitionPath, logName),
				IndexPath:   filepath.Join(partitionPath, indexName),
			}
			byID[id] = sf
		}
		if ext == segment.FileExt {
			sf.HasLog, sf.LogSize = true, info.Size()
		} else {
			sf.HasIndex, sf.IndexSize = true, info.Size()
		}
	}
	for _, sf := range byID {
		pd.Segments = append(pd.Segments, sf)
	}
	sort.Slice(pd.Segments, func(i, j int) bool { return pd.Segments[i].ID < pd.Segments[j].ID })
	return pd, skipped, nil
}

func (d *Directory) GetPath() string {
	return d.rootPath
}

// TopicNames returns the names of all topics in ascending order.
func (d *Directory) TopicNames() []string {
	d.RLock()
	defer d.RUnlock()

	names := make([]string, 0, len(d.topics))
	for name := range d.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Directory) GetTopic(name string) (*TopicDir, error) {
	d.RLock()
	defer d.RUnlock()

	td, ok := d.topics[name]
	if !ok {
		return nil, NotFoundError(filepath.Join(d.rootPath, name))
	}
	return td, nil
}

// GatherPartitions lists the partitions of every topic, ordered by topic name
// and partition id.
func (d *Directory) GatherPartitions() []*PartitionDir {
	var parts []*PartitionDir
	for _, name := range d.TopicNames() {
		td, err := d.GetTopic(name)
		if err != nil {
			continue
		}
		parts = append(parts, td.Partitions...)
	}
	return parts
}

// GatherSegments lists the segments of every partition in the tree.
func (d *Directory) GatherSegments() []*SegmentFiles {
	var segs []*SegmentFiles
	for _, pd := range d.GatherPartitions() {
		segs = append(segs, pd.Segments...)
	}
	return segs
}

// Skipped returns the paths that were found but do not fit the layout.
func (d *Directory) Skipped() []string {
	d.RLock()
	defer d.RUnlock()
	return append([]string(nil), d.skipped...)
}

func (d *Directory) String() string {
	var b strings.Builder
	for _, pd := range d.GatherPartitions() {
		var size int64
		for _, sf := range pd.Segments {
			size += sf.LogSize + sf.IndexSize
		}
		fmt.Fprintf(&b, "%s/%d: %d segments, %d bytes\n", pd.Topic, pd.ID, len(pd.Segments), size)
	}
	return b.String()
}
