package verify

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"code.cloudfoundry.org/bytefmt"
	"github.com/gobwas/glob"
	"github.com/spf13/cobra"

	"github.com/alpacahq/logappender/catalog"
	"github.com/alpacahq/logappender/utils/log"
	"github.com/alpacahq/logappender/verify"
)

const (
	usage   = "verify"
	short   = "Check the consistency of segment and index files"
	long    = "This command checks every index against its data file without modifying anything"
	example = "logappender tool verify --dir <path> --parallel 4 --topics 'orders*'"

	// Flag descriptions.
	rootDirPathDesc = "set filesystem path of the root directory holding the topics"
	parallelDesc    = "set the number of partitions checked at the same time"
	topicsDesc      = "only check topics whose name matches this glob pattern"
	strictDesc      = "treat warnings as failures"
)

var (
	// Available flags.
	rootDirPath  string
	parallel     int
	topicPattern string
	strict       bool

	// Cmd is the verify command.
	Cmd = &cobra.Command{
		Use:     usage,
		Short:   short,
		Long:    long,
		Aliases: []string{"ic", "integrity"},
		Example: example,
		RunE:    executeVerify,
	}

	errVerifyFailed = errors.New("verification failed")
)

// nolint:gochecknoinits // cobra's standard way to initialize flags
func init() {
	Cmd.Flags().StringVarP(&rootDirPath, "dir", "d", "", rootDirPathDesc)
	_ = Cmd.MarkFlagRequired("dir")
	Cmd.Flags().IntVar(&parallel, "parallel", runtime.NumCPU(), parallelDesc)
	Cmd.Flags().StringVar(&topicPattern, "topics", "*", topicsDesc)
	Cmd.Flags().BoolVar(&strict, "strict", false, strictDesc)
}

// executeVerify implements the verify tool.
func executeVerify(cmd *cobra.Command, _ []string) error {
	pattern, err := glob.Compile(topicPattern)
	if err != nil {
		return fmt.Errorf("invalid --topics pattern %q: %w", topicPattern, err)
	}
	cmd.SilenceUsage = true

	rootDirPath = filepath.Clean(rootDirPath)
	log.Info("Root directory: %v", rootDirPath)
	d, err := catalog.NewDirectory(rootDirPath)
	if err != nil {
		return err
	}

	rep, err := verify.RunFiltered(cmd.Context(), d, parallel, pattern.Match)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var failed bool
	for _, p := range rep.Problems {
		failed = failed || p.Severity == verify.Corruption || strict
		fmt.Fprintln(out, p.String())
	}
	fmt.Fprintf(out, "checked %d segments, %d records, %s of payload\n",
		rep.Segments, rep.Records, bytefmt.ByteSize(rep.Bytes))
	if failed {
		return errVerifyFailed
	}
	return nil
}
