package index

import "fmt"

// FileError is returned when an index file cannot be opened, created or read.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("index file %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// WriteError is returned when an entry could not be appended to the index file.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("index write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// CorruptIndexError reports an index file whose length is not a multiple of
// EntryWidth. The segment owning it must not accept further writes.
type CorruptIndexError struct {
	Path string
	Size int64
}

func (e *CorruptIndexError) Error() string {
	return fmt.Sprintf("corrupt index %s: length %d is not a multiple of %d (%d trailing bytes)",
		e.Path, e.Size, EntryWidth, e.Size%EntryWidth)
}
