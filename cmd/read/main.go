package read

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/alpacahq/logappender/segment"
	"github.com/alpacahq/logappender/topic"
	"github.com/alpacahq/logappender/utils/log"
)

const (
	usage   = "read"
	short   = "Print records stored in a topic"
	long    = "This command prints the record at an offset of a segment, or every record of the segment when no offset is given"
	example = "logappender read --dir <path> --topic orders --partition 0 --segment 0 --offset 3"

	// Flag descriptions.
	dirDesc       = "set filesystem path of the root directory holding the topics"
	topicDesc     = "set the name of the topic to read from"
	partitionDesc = "set the partition id"
	segmentDesc   = "set the segment id"
	offsetDesc    = "set the offset of the record within the segment, -1 prints all records"

	allOffsets = -1
)

var (
	// Available flags.
	rootDirPath string
	topicName   string
	partitionID uint64
	segmentID   uint64
	offset      int64

	// Cmd is the read command.
	Cmd = &cobra.Command{
		Use:     usage,
		Short:   short,
		Long:    long,
		Aliases: []string{"r", "cat"},
		Example: example,
		RunE:    executeRead,
	}
)

// nolint:gochecknoinits // cobra's standard way to initialize flags
func init() {
	Cmd.Flags().StringVarP(&rootDirPath, "dir", "d", "", dirDesc)
	_ = Cmd.MarkFlagRequired("dir")
	Cmd.Flags().StringVarP(&topicName, "topic", "t", "", topicDesc)
	_ = Cmd.MarkFlagRequired("topic")
	Cmd.Flags().Uint64VarP(&partitionID, "partition", "p", 0, partitionDesc)
	Cmd.Flags().Uint64VarP(&segmentID, "segment", "s", 0, segmentDesc)
	Cmd.Flags().Int64VarP(&offset, "offset", "o", allOffsets, offsetDesc)
}

// executeRead implements the read command.
func executeRead(cmd *cobra.Command, _ []string) error {
	topicPath := filepath.Join(rootDirPath, topicName)
	if _, err := os.Stat(topicPath); err != nil {
		return fmt.Errorf("topic %s: %w", topicPath, err)
	}
	cmd.SilenceUsage = true

	t, err := topic.OpenOrCreate(rootDirPath, topicName, topic.Config{})
	if err != nil {
		return err
	}
	defer func() {
		if err2 := t.Close(); err2 != nil {
			log.Error("failed to close topic %s: %v", topicName, err2)
		}
	}()

	p, ok := t.Partition(partitionID)
	if !ok {
		return topic.UnknownPartitionError(fmt.Sprintf("%s/%d", topicName, partitionID))
	}
	s, ok := p.Segment(segmentID)
	if !ok {
		return fmt.Errorf("segment %d not found in %s", segmentID, p.Path())
	}

	if offset != allOffsets {
		if offset < 0 {
			return fmt.Errorf("invalid --offset %d", offset)
		}
		return PrintRecord(cmd.OutOrStdout(), p, segmentID, uint64(offset))
	}
	for o := uint64(0); o < s.Records(); o++ {
		if err := PrintRecord(cmd.OutOrStdout(), p, segmentID, o); err != nil {
			return err
		}
	}
	return nil
}

var errRecordNotFound = errors.New("record not found")

// PrintRecord writes "<offset>\t<payload>" for the record at offset.
func PrintRecord(w io.Writer, p *topic.Partition, segmentID, offset uint64) error {
	data, ok, err := p.Read(segmentID, offset)
	if err != nil {
		var se segment.ShortReadError
		if errors.As(err, &se) {
			log.Warn("segment %d of %s is shorter than its index", segmentID, p.Path())
		}
		return err
	}
	if !ok {
		return fmt.Errorf("%w: offset %d of segment %d", errRecordNotFound, offset, segmentID)
	}
	_, err = fmt.Fprintf(w, "%d\t%s\n", offset, data)
	return err
}
