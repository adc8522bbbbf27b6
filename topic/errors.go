package topic

import (
	"fmt"

	"github.com/alpacahq/logappender/utils/io"
	"github.com/alpacahq/logappender/utils/log"
)

type InvalidPathError string

func (msg InvalidPathError) Error() string {
	return errReport("%s: Path is not a directory named by a numeric id", string(msg))
}

type UnknownPartitionError string

func (msg UnknownPartitionError) Error() string {
	return errReport("%s: Partition does not exist in topic", string(msg))
}

func errReport(base, msg string) string {
	base = io.GetCallerFileContext(2) + ":" + base
	log.Debug(base, msg)
	return fmt.Sprintf(base, msg)
}
