package connect

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alpacahq/logappender/cmd/connect/session"
	"github.com/alpacahq/logappender/topic"
	"github.com/alpacahq/logappender/utils"
	"github.com/alpacahq/logappender/utils/log"
)

const (
	// Command
	// -------------.
	usage   = "connect"
	short   = "Open an interactive session on a topic"
	long    = "This command opens an interactive session that appends every typed line to a topic"
	example = "logappender connect --dir <path> --topic orders"

	// Flags.
	// -------------
	dirDesc     = "filesystem path of the root directory holding the topics"
	topicDesc   = "name of the topic to open or create"
	segmentDesc = "size at which segments roll over, e.g. 1K, 64MB"
)

var (
	// Cmd is the connect command.
	Cmd = &cobra.Command{
		Use:        usage,
		Short:      short,
		Long:       long,
		SuggestFor: []string{"open", "conn", "shell"},
		Example:    example,
		Args:       validateArgs,
		RunE:       executeConnect,
	}

	// dir set via flag for local directory location.
	dir string
	// topicName set via flag for the topic to work on.
	topicName string
	// maxSegmentBytes set via flag for the rollover threshold.
	maxSegmentBytes string
)

// nolint:gochecknoinits // cobra's standard way to initialize flags
func init() {
	Cmd.Flags().StringVarP(&dir, "dir", "d", "", dirDesc)
	Cmd.Flags().StringVarP(&topicName, "topic", "t", "", topicDesc)
	Cmd.Flags().StringVar(&maxSegmentBytes, "max-segment-bytes", "1K", segmentDesc)
}

// validateArgs returns an error that prevents cmd execution if
// the custom validation fails.
func validateArgs(_ *cobra.Command, _ []string) error {
	if dir == "" || topicName == "" {
		return errors.New("cannot open a session, set both --dir and --topic")
	}
	return nil
}

// executeConnect implements the connect command.
func executeConnect(_ *cobra.Command, _ []string) error {
	limit, err := utils.ParseByteSize(maxSegmentBytes)
	if err != nil {
		return fmt.Errorf("invalid --max-segment-bytes %q: %w", maxSegmentBytes, err)
	}
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	t, err := topic.OpenOrCreate(dir, topicName, topic.Config{MaxSegmentBytes: limit})
	if err != nil {
		return err
	}
	defer t.Close()

	// Enter command loop
	if err = session.NewClient(t, os.Stdout).Read(); err != nil {
		return err
	}

	log.Info("closed session on %s", t.Path())
	return nil
}
