package segment

import (
	"fmt"

	"github.com/alpacahq/logappender/utils/io"
	"github.com/alpacahq/logappender/utils/log"
)

// FileError is returned when a segment's data or index file cannot be
// opened, created, stat'd or recovered.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("segment file %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// WriteError is returned when appending to a segment failed.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("segment write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

type ShortReadError string

func (msg ShortReadError) Error() string {
	return errReport("%s: Unexpectedly short read", string(msg))
}

type InvalidPathError string

func (msg InvalidPathError) Error() string {
	return errReport("%s: Segment file name is not a numeric segment id", string(msg))
}

type InvalidEntriesError string

func (msg InvalidEntriesError) Error() string {
	return errReport("%s: Index entries do not describe the appended block", string(msg))
}

type SealedError string

func (msg SealedError) Error() string {
	return errReport("%s: Segment is sealed, can not append new data", string(msg))
}

type TruncatedDataError string

func (msg TruncatedDataError) Error() string {
	return errReport("%s: Index references bytes past the end of the data file", string(msg))
}

func errReport(base, msg string) string {
	base = io.GetCallerFileContext(2) + ":" + base
	log.Debug(base, msg)
	return fmt.Sprintf(base, msg)
}
