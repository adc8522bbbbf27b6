// Package index maintains the per-segment offset index. An index file is a
// headerless sequence of fixed-width entries, one per record appended to the
// segment, in offset order.
package index

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/alpacahq/logappender/utils/log"
)

// EntryWidth is the on-disk size of one Entry: four little-endian uint64s.
const EntryWidth = 32

const (
	// FileExt is the extension of index files.
	FileExt = ".index"

	fileMode = 0o644
)

// Entry locates one record inside its segment's data file.
type Entry struct {
	// Offset is the record's logical position within the segment, starting at 0.
	Offset uint64
	// Position is the byte offset of the payload in the data file.
	Position uint64
	// Size is the payload length in bytes.
	Size uint64
	// Timestamp is reserved and currently always 0.
	Timestamp uint64
}

// Encode writes e into buf, which must be at least EntryWidth long.
// Field order is offset, position, size, timestamp.
func Encode(e Entry, buf []byte) {
	_ = buf[EntryWidth-1]
	binary.LittleEndian.PutUint64(buf[0:8], e.Offset)
	binary.LittleEndian.PutUint64(buf[8:16], e.Position)
	binary.LittleEndian.PutUint64(buf[16:24], e.Size)
	binary.LittleEndian.PutUint64(buf[24:32], e.Timestamp)
}

// Decode is the inverse of Encode.
func Decode(buf []byte) Entry {
	_ = buf[EntryWidth-1]
	return Entry{
		Offset:    binary.LittleEndian.Uint64(buf[0:8]),
		Position:  binary.LittleEndian.Uint64(buf[8:16]),
		Size:      binary.LittleEndian.Uint64(buf[16:24]),
		Timestamp: binary.LittleEndian.Uint64(buf[24:32]),
	}
}

// DecodeAll decodes a whole index file image. The length of data must be a
// multiple of EntryWidth.
func DecodeAll(path string, data []byte) ([]Entry, error) {
	if len(data)%EntryWidth != 0 {
		return nil, &CorruptIndexError{Path: path, Size: int64(len(data))}
	}
	entries := make([]Entry, 0, len(data)/EntryWidth)
	for pos := 0; pos < len(data); pos += EntryWidth {
		entries = append(entries, Decode(data[pos:pos+EntryWidth]))
	}
	return entries, nil
}

// FileName returns "<segmentID>.index".
func FileName(segmentID uint64) string {
	return strconv.FormatUint(segmentID, 10) + FileExt
}

// Index is the in-memory copy of one segment's index file together with an
// append handle on it. An Index is not safe for concurrent use.
type Index struct {
	segmentID uint64
	path      string
	fp        *os.File
	size      int64
	entries   []Entry
}

// New opens (creating if absent) "<segmentID>.index" under parentDir for
// appending. The in-memory entry sequence starts empty.
func New(segmentID uint64, parentDir string) (*Index, error) {
	path := filepath.Join(parentDir, FileName(segmentID))
	fp, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	fi, err := fp.Stat()
	if err != nil {
		_ = fp.Close()
		return nil, &FileError{Path: path, Err: err}
	}
	return &Index{
		segmentID: segmentID,
		path:      path,
		fp:        fp,
		size:      fi.Size(),
	}, nil
}

// ReadFromFile loads every entry of fileName into memory and reopens the file
// for appending. A file whose length is not a multiple of EntryWidth is
// rejected with a CorruptIndexError.
func ReadFromFile(segmentID uint64, fileName string) (*Index, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, &FileError{Path: fileName, Err: err}
	}

	entries, err := DecodeAll(fileName, data)
	if err != nil {
		log.Error("refusing to load index: %v", err)
		return nil, err
	}

	fp, err := openAppend(fileName)
	if err != nil {
		return nil, err
	}
	log.Debug("loaded %d index entries from %s", len(entries), fileName)

	return &Index{
		segmentID: segmentID,
		path:      fileName,
		fp:        fp,
		size:      int64(len(data)),
		entries:   entries,
	}, nil
}

func openAppend(path string) (*os.File, error) {
	fp, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, fileMode)
	if err != nil {
		return nil, &FileError{Path: path, Err: err}
	}
	return fp, nil
}

// Write appends the encoded entry to the index file. It does not touch the
// in-memory entries; see Append.
func (idx *Index) Write(e Entry) error {
	var buf [EntryWidth]byte
	Encode(e, buf[:])
	return idx.write(buf[:])
}

// write appends buf, a whole number of encoded entries. On a short or failed
// write the file is truncated back to its previous length.
func (idx *Index) write(buf []byte) error {
	n, err := idx.fp.Write(buf)
	if err == nil && n == len(buf) {
		idx.size += int64(n)
		return nil
	}
	if err == nil {
		err = fmt.Errorf("wrote %d of %d bytes", n, len(buf))
	}
	if n > 0 {
		if terr := idx.truncate(len(idx.entries)); terr != nil {
			log.Error("failed to roll back partial index write on %s: %v", idx.path, terr)
			return &WriteError{Path: idx.path, Err: fmt.Errorf("%w (rollback failed: %v)", err, terr)}
		}
	}
	return &WriteError{Path: idx.path, Err: err}
}

// Append persists e and adds it to the in-memory sequence.
func (idx *Index) Append(e Entry) error {
	if err := idx.Write(e); err != nil {
		return err
	}
	idx.entries = append(idx.entries, e)
	return nil
}

// AppendBatch persists all entries with a single write and adds them to the
// in-memory sequence. Either every entry is recorded or none is.
func (idx *Index) AppendBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	buf := make([]byte, len(entries)*EntryWidth)
	for i, e := range entries {
		Encode(e, buf[i*EntryWidth:])
	}
	if err := idx.write(buf); err != nil {
		return err
	}
	idx.entries = append(idx.entries, entries...)
	return nil
}

// truncate drops every entry after the first n, on disk and in memory.
func (idx *Index) truncate(n int) error {
	if n < 0 || n > len(idx.entries) {
		return fmt.Errorf("truncate %s to %d entries: have %d", idx.path, n, len(idx.entries))
	}
	size := int64(n) * EntryWidth
	if err := idx.fp.Truncate(size); err != nil {
		return &WriteError{Path: idx.path, Err: err}
	}
	idx.size = size
	idx.entries = idx.entries[:n]
	return nil
}

// Search finds the entry with exactly the given offset. Entries are sorted by
// offset by construction.
func (idx *Index) Search(offset uint64) (Entry, bool) {
	i := sort.Search(len(idx.entries), func(i int) bool {
		return idx.entries[i].Offset >= offset
	})
	if i < len(idx.entries) && idx.entries[i].Offset == offset {
		return idx.entries[i], true
	}
	return Entry{}, false
}

// Entries returns the in-memory entries. The slice must not be modified.
func (idx *Index) Entries() []Entry {
	return idx.entries
}

func (idx *Index) Len() int {
	return len(idx.entries)
}

func (idx *Index) SegmentID() uint64 {
	return idx.segmentID
}

func (idx *Index) Path() string {
	return idx.path
}

// Size is the current length of the index file in bytes.
func (idx *Index) Size() int64 {
	return idx.size
}

// Sync commits the index file to stable storage.
func (idx *Index) Sync() error {
	if err := idx.fp.Sync(); err != nil {
		return &WriteError{Path: idx.path, Err: err}
	}
	return nil
}

func (idx *Index) Close() error {
	if idx.fp == nil {
		return nil
	}
	err := idx.fp.Close()
	idx.fp = nil
	return err
}
