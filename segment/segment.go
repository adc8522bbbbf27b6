// Package segment implements the append-only record store. A segment is a
// pair of files in its partition directory: "<id>.log" holds the raw record
// payloads back to back and "<id>.index" holds one index.Entry per record.
package segment

import (
	"errors"
	"fmt"
	goio "io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alpacahq/logappender/index"
	"github.com/alpacahq/logappender/utils/log"
)

const (
	// MaxSegmentBytes is the default size at which a partition rolls its
	// active segment over to a new one.
	MaxSegmentBytes uint64 = 1 * 1024

	// FileExt is the extension of segment data files.
	FileExt = ".log"

	fileMode = 0o644
)

// FileNames returns the data and index file names of segment id.
func FileNames(id uint64) (logName, indexName string) {
	return strconv.FormatUint(id, 10) + FileExt, index.FileName(id)
}

// ParseID extracts the segment id from a data or index file path.
func ParseID(path string) (uint64, error) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	id, err := strconv.ParseUint(stem, 10, 64)
	if err != nil {
		return 0, InvalidPathError(path)
	}
	return id, nil
}

// Segment is a single reader/writer of one data file and its index. It is not
// safe for concurrent use; the owning partition serializes access.
type Segment struct {
	partitionID uint64
	segmentID   uint64
	dataPath    string
	fp          *os.File
	// records is the number of records in the segment and the offset of the next one.
	records uint64
	// bytesConsumed is the data file length and the position of the next record.
	bytesConsumed uint64
	index         *index.Index
	sealed        bool
	// broken is set when a failed append could not be rolled back.
	broken error
}

// New opens the segment stored at segmentFilePath. When the data file exists
// the segment is recovered: the data file length becomes BytesConsumed and the
// index file, which must be present, is loaded into memory. Otherwise a fresh
// empty segment is created.
func New(partitionID uint64, segmentFilePath, indexFilePath string) (s *Segment, err error) {
	segmentID, err := ParseID(segmentFilePath)
	if err != nil {
		return nil, err
	}

	var (
		idx      *index.Index
		fileSize uint64
	)
	fi, err := os.Stat(segmentFilePath)
	switch {
	case err == nil:
		fileSize = uint64(fi.Size())
		idx, err = index.ReadFromFile(segmentID, indexFilePath)
		if err != nil {
			return nil, &FileError{Path: indexFilePath, Err: err}
		}
	case errors.Is(err, os.ErrNotExist):
		idx, err = index.New(segmentID, filepath.Dir(indexFilePath))
		if err != nil {
			return nil, &FileError{Path: indexFilePath, Err: err}
		}
		if idx.Size() > 0 {
			// entries without a data file to point into
			_ = idx.Close()
			return nil, &FileError{Path: indexFilePath, Err: TruncatedDataError(segmentFilePath)}
		}
	default:
		return nil, &FileError{Path: segmentFilePath, Err: err}
	}
	defer func() {
		if err != nil {
			_ = idx.Close()
		}
	}()

	for _, e := range idx.Entries() {
		if !within(e, fileSize) {
			return nil, &FileError{Path: segmentFilePath, Err: TruncatedDataError(fmt.Sprintf(
				"%s: offset %d wants %d bytes at %d, data file holds %d", segmentFilePath, e.Offset, e.Size, e.Position, fileSize))}
		}
	}

	fp, err := os.OpenFile(segmentFilePath, os.O_CREATE|os.O_APPEND|os.O_RDWR, fileMode)
	if err != nil {
		return nil, &FileError{Path: segmentFilePath, Err: err}
	}

	s = &Segment{
		partitionID:   partitionID,
		segmentID:     segmentID,
		dataPath:      segmentFilePath,
		fp:            fp,
		records:       uint64(idx.Len()),
		bytesConsumed: fileSize,
		index:         idx,
	}
	if fileSize > 0 || idx.Len() > 0 {
		log.Info("recovered segment %d of partition %d: %d records, %d bytes",
			segmentID, partitionID, s.records, s.bytesConsumed)
	} else {
		log.Debug("created segment %s", segmentFilePath)
	}
	return s, nil
}

// AppendOne appends data as a single record. The counters only advance once
// both the payload and its index entry are on disk.
func (s *Segment) AppendOne(data []byte) error {
	if err := s.writable(); err != nil {
		return err
	}
	if err := s.writeData(data); err != nil {
		return err
	}

	entry := index.Entry{
		Offset:   s.records,
		Position: s.bytesConsumed,
		Size:     uint64(len(data)),
		// Timestamp is reserved
	}
	if err := s.index.Append(entry); err != nil {
		s.rollbackData()
		return &WriteError{Path: s.index.Path(), Err: err}
	}

	s.bytesConsumed += uint64(len(data))
	s.records++
	return nil
}

// Append writes a block holding several records at once. entries must
// describe the block exactly: offsets continuing from Records, positions
// continuing from BytesConsumed and sizes adding up to len(data). All entries
// are persisted to the index file, as with AppendOne.
func (s *Segment) Append(data []byte, entries []index.Entry) error {
	if err := s.writable(); err != nil {
		return err
	}
	if err := s.validate(data, entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	if err := s.writeData(data); err != nil {
		return err
	}
	if err := s.index.AppendBatch(entries); err != nil {
		s.rollbackData()
		return &WriteError{Path: s.index.Path(), Err: err}
	}

	s.bytesConsumed += uint64(len(data))
	s.records += uint64(len(entries))
	return nil
}

func (s *Segment) validate(data []byte, entries []index.Entry) error {
	pos := s.bytesConsumed
	for i, e := range entries {
		if e.Offset != s.records+uint64(i) {
			return InvalidEntriesError(fmt.Sprintf("%s: entry %d has offset %d, expected %d",
				s.dataPath, i, e.Offset, s.records+uint64(i)))
		}
		if e.Position != pos {
			return InvalidEntriesError(fmt.Sprintf("%s: entry %d has position %d, expected %d",
				s.dataPath, i, e.Position, pos))
		}
		pos += e.Size
	}
	if pos-s.bytesConsumed != uint64(len(data)) {
		return InvalidEntriesError(fmt.Sprintf("%s: entries cover %d bytes, block has %d",
			s.dataPath, pos-s.bytesConsumed, len(data)))
	}
	return nil
}

func (s *Segment) writable() error {
	if s.broken != nil {
		return s.broken
	}
	if s.sealed {
		return SealedError(s.dataPath)
	}
	return nil
}

func (s *Segment) writeData(data []byte) error {
	n, err := s.fp.Write(data)
	if err == nil && n == len(data) {
		return nil
	}
	if err == nil {
		err = goio.ErrShortWrite
	}
	if n > 0 {
		s.rollbackData()
	}
	return &WriteError{Path: s.dataPath, Err: err}
}

// rollbackData cuts the data file back to bytesConsumed. If that fails the
// file no longer matches the index and the segment refuses further appends.
func (s *Segment) rollbackData() {
	if err := s.fp.Truncate(int64(s.bytesConsumed)); err != nil {
		log.Error("failed to roll back data file %s to %d bytes: %v", s.dataPath, s.bytesConsumed, err)
		s.broken = &WriteError{Path: s.dataPath, Err: fmt.Errorf("segment is inconsistent after failed rollback: %w", err)}
	}
}

// GetIndexForOffset returns the index entry of offset. An offset that was
// never written is reported with false, not as an error.
func (s *Segment) GetIndexForOffset(offset uint64) (index.Entry, bool) {
	return s.index.Search(offset)
}

// ReadContentAtOffset returns the payload stored at offset, or false when the
// offset is unknown. Fewer bytes than recorded in the index is a
// ShortReadError.
func (s *Segment) ReadContentAtOffset(offset uint64) ([]byte, bool, error) {
	entry, ok := s.GetIndexForOffset(offset)
	if !ok {
		return nil, false, nil
	}

	if !within(entry, s.bytesConsumed) {
		return nil, true, ShortReadError(fmt.Sprintf("%s: offset %d wants %d bytes at %d, data file holds %d",
			s.dataPath, offset, entry.Size, entry.Position, s.bytesConsumed))
	}
	buf := make([]byte, entry.Size)
	n, err := s.fp.ReadAt(buf, int64(entry.Position))
	if n < len(buf) {
		if err == nil || errors.Is(err, goio.EOF) {
			return nil, true, ShortReadError(fmt.Sprintf("%s: offset %d wants %d bytes at %d, got %d",
				s.dataPath, offset, entry.Size, entry.Position, n))
		}
		return nil, true, &FileError{Path: s.dataPath, Err: err}
	}
	return buf, true, nil
}

// within reports whether e lies inside the first size bytes of a data file.
func within(e index.Entry, size uint64) bool {
	return e.Position <= size && e.Size <= size-e.Position
}

// WouldOverflow reports whether appending n more bytes takes a non-empty
// segment past limit. An empty segment always accepts the record.
func (s *Segment) WouldOverflow(n, limit uint64) bool {
	return s.bytesConsumed > 0 && s.bytesConsumed+n > limit
}

// Seal makes the segment read-only and flushes both files to disk.
func (s *Segment) Seal() error {
	if s.sealed {
		return nil
	}
	if err := s.Sync(); err != nil {
		return err
	}
	s.sealed = true
	log.Info("sealed segment %d of partition %d at %d records, %d bytes",
		s.segmentID, s.partitionID, s.records, s.bytesConsumed)
	return nil
}

func (s *Segment) Sync() error {
	if err := s.fp.Sync(); err != nil {
		return &WriteError{Path: s.dataPath, Err: err}
	}
	return s.index.Sync()
}

// Close releases both file handles.
func (s *Segment) Close() error {
	var errs []error
	if s.fp != nil {
		errs = append(errs, s.fp.Close())
		s.fp = nil
	}
	errs = append(errs, s.index.Close())
	return errors.Join(errs...)
}

func (s *Segment) ID() uint64 {
	return s.segmentID
}

func (s *Segment) PartitionID() uint64 {
	return s.partitionID
}

func (s *Segment) Records() uint64 {
	return s.records
}

func (s *Segment) BytesConsumed() uint64 {
	return s.bytesConsumed
}

func (s *Segment) Sealed() bool {
	return s.sealed
}

// Entries returns the in-memory index. The slice must not be modified.
func (s *Segment) Entries() []index.Entry {
	return s.index.Entries()
}

func (s *Segment) DataPath() string {
	return s.dataPath
}

func (s *Segment) IndexPath() string {
	return s.index.Path()
}
