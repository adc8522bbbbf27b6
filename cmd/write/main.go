package write

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"code.cloudfoundry.org/bytefmt"
	"github.com/spf13/cobra"

	"github.com/alpacahq/logappender/topic"
	"github.com/alpacahq/logappender/utils"
	"github.com/alpacahq/logappender/utils/log"
)

const (
	usage   = "write"
	short   = "Append records to a topic"
	long    = "This command appends each argument, or each line of stdin when no argument is given, as one record"
	example = "logappender write --dir <path> --topic orders 'first record' 'second record'"

	// Flag descriptions.
	dirDesc        = "set filesystem path of the root directory holding the topics"
	topicDesc      = "set the name of the topic to append to"
	partitionDesc  = "append to this partition id instead of letting the partitioner choose"
	partitionsDesc = "make sure the topic has at least this many partitions"
	roundRobinDesc = "spread records over all partitions in turn"
	segmentDesc    = "set the size at which segments roll over, e.g. 1K, 64MB"

	defaultMaxSegmentBytes = "1K"
	noPartition            = -1
)

var (
	// Available flags.
	rootDirPath     string
	topicName       string
	partitionID     int
	numPartitions   int
	roundRobin      bool
	maxSegmentBytes string

	// Cmd is the write command.
	Cmd = &cobra.Command{
		Use:     usage,
		Short:   short,
		Long:    long,
		Aliases: []string{"w", "append"},
		Example: example,
		RunE:    executeWrite,
	}
)

// nolint:gochecknoinits // cobra's standard way to initialize flags
func init() {
	Cmd.Flags().StringVarP(&rootDirPath, "dir", "d", "", dirDesc)
	_ = Cmd.MarkFlagRequired("dir")
	Cmd.Flags().StringVarP(&topicName, "topic", "t", "", topicDesc)
	_ = Cmd.MarkFlagRequired("topic")
	Cmd.Flags().IntVarP(&partitionID, "partition", "p", noPartition, partitionDesc)
	Cmd.Flags().IntVar(&numPartitions, "partitions", 1, partitionsDesc)
	Cmd.Flags().BoolVar(&roundRobin, "round-robin", false, roundRobinDesc)
	Cmd.Flags().StringVar(&maxSegmentBytes, "max-segment-bytes", defaultMaxSegmentBytes, segmentDesc)
}

// executeWrite implements the write command.
func executeWrite(cmd *cobra.Command, args []string) error {
	limit, err := utils.ParseByteSize(maxSegmentBytes)
	if err != nil {
		return fmt.Errorf("invalid --max-segment-bytes %q: %w", maxSegmentBytes, err)
	}
	cmd.SilenceUsage = true

	cfg := topic.Config{MaxSegmentBytes: limit}
	if roundRobin {
		cfg.Partitioner = &topic.RoundRobinPartitioner{}
	}
	t, err := OpenTopic(rootDirPath, topicName, numPartitions, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err2 := t.Close(); err2 != nil {
			log.Error("failed to close topic %s: %v", topicName, err2)
		}
	}()

	write := t.Write
	if partitionID != noPartition {
		if partitionID < 0 {
			return fmt.Errorf("invalid --partition %d", partitionID)
		}
		write = func(data []byte) error { return t.WriteToPartition(uint64(partitionID), data) }
	}

	var records []string
	if len(args) > 0 {
		records = args
	} else {
		records, err = ReadLines(cmd.InOrStdin())
		if err != nil {
			return err
		}
	}

	var written uint64
	for i, r := range records {
		if err := write([]byte(r)); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		written += uint64(len(r))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "appended %d records (%s) to %s\n",
		len(records), bytefmt.ByteSize(written), t.Path())
	return nil
}

// OpenTopic opens or creates the topic and adds partitions until it has at
// least numPartitions of them.
func OpenTopic(rootDir, name string, numPartitions int, cfg topic.Config) (*topic.Topic, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("create root directory %s: %w", rootDir, err)
	}
	t, err := topic.OpenOrCreate(rootDir, name, cfg)
	if err != nil {
		return nil, err
	}
	for len(t.Partitions()) < numPartitions {
		if _, err := t.AddPartition(); err != nil {
			return nil, errors.Join(err, t.Close())
		}
	}
	return t, nil
}

// ReadLines returns every line of r without its line terminator.
func ReadLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), 1<<26)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return lines, nil
}
