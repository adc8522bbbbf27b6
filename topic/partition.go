package topic

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/alpacahq/logappender/metrics"
	"github.com/alpacahq/logappender/segment"
	"github.com/alpacahq/logappender/utils/log"
)

const dirMode = 0o755

// Partition owns one writable segment and the segments sealed before it. The
// embedded mutex is the partition's single-writer token: every method takes
// it, so at most one append touches the active segment at a time.
type Partition struct {
	sync.Mutex

	partitionID     uint64
	path            string
	topic           string
	maxSegmentBytes uint64
	active          *segment.Segment
	sealed          []*segment.Segment
}

// NewPartition creates "<topicPath>/<partitionID>" if needed. Segments already
// in the directory are reopened: the one with the highest id becomes the
// active segment and the rest are sealed. A fresh directory starts without
// any segment; the first write creates segment 0.
func NewPartition(topicPath string, partitionID, maxSegmentBytes uint64) (*Partition, error) {
	if maxSegmentBytes == 0 {
		maxSegmentBytes = segment.MaxSegmentBytes
	}
	partitionPath := filepath.Join(topicPath, strconv.FormatUint(partitionID, 10))
	if err := os.MkdirAll(partitionPath, dirMode); err != nil {
		return nil, fmt.Errorf("create partition directory %s: %w", partitionPath, err)
	}

	p := &Partition{
		partitionID:     partitionID,
		path:            partitionPath,
		topic:           filepath.Base(topicPath),
		maxSegmentBytes: maxSegmentBytes,
	}

	ids, err := segmentIDs(partitionPath)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		s, err := p.openSegment(id)
		if err != nil {
			_ = p.closeSegments()
			return nil, err
		}
		if i < len(ids)-1 {
			if err := s.Seal(); err != nil {
				_ = s.Close()
				metrics.OpenSegments.Dec()
				_ = p.closeSegments()
				return nil, err
			}
			p.sealed = append(p.sealed, s)
			continue
		}
		p.active = s
	}
	if len(ids) > 0 {
		log.Info("partition %s: %d sealed segments, active segment %d", partitionPath, len(p.sealed), p.active.ID())
	}
	return p, nil
}

// segmentIDs lists the ids of the "<id>.log" files in dir in ascending order.
func segmentIDs(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read partition directory %s: %w", dir, err)
	}
	var ids []uint64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != segment.FileExt {
			continue
		}
		id, err := segment.ParseID(e.Name())
		if err != nil {
			return nil, InvalidPathError(filepath.Join(dir, e.Name()))
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (p *Partition) openSegment(id uint64) (*segment.Segment, error) {
	logName, indexName := segment.FileNames(id)
	s, err := segment.New(p.partitionID, filepath.Join(p.path, logName), filepath.Join(p.path, indexName))
	if err != nil {
		return nil, err
	}
	metrics.OpenSegments.Inc()
	return s, nil
}

// WriteToSegment appends data as one record to the active segment, creating
// segment 0 if the partition has none yet and rolling over to a new segment
// first if data would push the active one past the size limit.
func (p *Partition) WriteToSegment(data []byte) error {
	p.Lock()
	defer p.Unlock()

	if err := p.ensureActiveSegment(); err != nil {
		return err
	}
	if p.active.WouldOverflow(uint64(len(data)), p.maxSegmentBytes) {
		if err := p.roll(); err != nil {
			return err
		}
	}
	if err := p.active.AppendOne(data); err != nil {
		metrics.AppendErrorsTotal.WithLabelValues(p.topic).Inc()
		return err
	}
	metrics.RecordsAppendedTotal.WithLabelValues(p.topic).Inc()
	metrics.BytesAppendedTotal.WithLabelValues(p.topic).Add(float64(len(data)))
	return nil
}

// EnsureActiveSegment creates segment 0 when the partition has no segment.
func (p *Partition) EnsureActiveSegment() error {
	p.Lock()
	defer p.Unlock()
	return p.ensureActiveSegment()
}

func (p *Partition) ensureActiveSegment() error {
	if p.active != nil {
		return nil
	}
	s, err := p.openSegment(0)
	if err != nil {
		log.Error("partition %s: can not create segment 0: %v", p.path, err)
		return err
	}
	p.active = s
	return nil
}

// Roll seals the active segment and replaces it with a new one whose id is
// one higher. A partition without segments gets segment 0.
func (p *Partition) Roll() error {
	p.Lock()
	defer p.Unlock()

	if p.active == nil {
		return p.ensureActiveSegment()
	}
	return p.roll()
}

// roll opens the next segment before sealing the current one so that a
// failure leaves the partition writable.
func (p *Partition) roll() error {
	prev := p.active
	next, err := p.openSegment(prev.ID() + 1)
	if err != nil {
		log.Error("partition %s: can not create segment %d: %v", p.path, prev.ID()+1, err)
		return err
	}
	if err := prev.Seal(); err != nil {
		_ = next.Close()
		metrics.OpenSegments.Dec()
		return err
	}
	p.sealed = append(p.sealed, prev)
	p.active = next
	metrics.SegmentsRolledTotal.WithLabelValues(p.topic).Inc()
	return nil
}

// Read returns the record at offset within segment segmentID.
func (p *Partition) Read(segmentID, offset uint64) ([]byte, bool, error) {
	p.Lock()
	defer p.Unlock()

	s, ok := p.segment(segmentID)
	if !ok {
		return nil, false, nil
	}
	return s.ReadContentAtOffset(offset)
}

// Segment looks up a sealed or active segment by id. The returned segment
// must not be used concurrently with writes to the partition.
func (p *Partition) Segment(segmentID uint64) (*segment.Segment, bool) {
	p.Lock()
	defer p.Unlock()
	return p.segment(segmentID)
}

func (p *Partition) segment(segmentID uint64) (*segment.Segment, bool) {
	if p.active != nil && p.active.ID() == segmentID {
		return p.active, true
	}
	i := sort.Search(len(p.sealed), func(i int) bool { return p.sealed[i].ID() >= segmentID })
	if i < len(p.sealed) && p.sealed[i].ID() == segmentID {
		return p.sealed[i], true
	}
	return nil, false
}

// ActiveSegment returns the writable segment, or nil before the first write.
func (p *Partition) ActiveSegment() *segment.Segment {
	p.Lock()
	defer p.Unlock()
	return p.active
}

// SealedSegments returns the sealed segments in ascending id order.
func (p *Partition) SealedSegments() []*segment.Segment {
	p.Lock()
	defer p.Unlock()
	return append([]*segment.Segment(nil), p.sealed...)
}

func (p *Partition) ID() uint64 {
	return p.partitionID
}

func (p *Partition) Path() string {
	return p.path
}

// Close releases the files of every segment in the partition.
func (p *Partition) Close() error {
	p.Lock()
	defer p.Unlock()
	return p.closeSegments()
}

func (p *Partition) closeSegments() error {
	var errs []error
	for _, s := range p.sealed {
		errs = append(errs, s.Close())
		metrics.OpenSegments.Dec()
	}
	if p.active != nil {
		errs = append(errs, p.active.Close())
		metrics.OpenSegments.Dec()
	}
	p.sealed = nil
	p.active = nil
	return errors.Join(errs...)
}
