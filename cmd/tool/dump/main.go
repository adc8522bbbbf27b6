package dump

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"github.com/alpacahq/logappender/index"
	"github.com/alpacahq/logappender/segment"
)

const (
	usage   = "dump"
	short   = "Print the entries of an index file"
	long    = "This command decodes an index file and prints one line per entry"
	example = "logappender tool dump --index <path>/orders/0/0.index --records --format csv"

	// Flag descriptions.
	indexPathDesc = "set filesystem path of the index file to decode"
	recordsDesc   = "also print each record payload, read from the segment data file next to the index"
	formatDesc    = "set the output format, table or csv"

	formatTable = "table"
	formatCSV   = "csv"
)

var (
	// Available flags.
	indexPath   string
	withRecords bool
	format      string

	// Cmd is the dump command.
	Cmd = &cobra.Command{
		Use:     usage,
		Short:   short,
		Long:    long,
		Example: example,
		RunE:    executeDump,
	}
)

// nolint:gochecknoinits // cobra's standard way to initialize flags
func init() {
	Cmd.Flags().StringVarP(&indexPath, "index", "i", "", indexPathDesc)
	_ = Cmd.MarkFlagRequired("index")
	Cmd.Flags().BoolVar(&withRecords, "records", false, recordsDesc)
	Cmd.Flags().StringVarP(&format, "format", "f", formatTable, formatDesc)
}

// Row is one decoded index entry, optionally with its payload.
type Row struct {
	Offset    uint64 `csv:"offset"`
	Position  uint64 `csv:"position"`
	Size      uint64 `csv:"size"`
	Timestamp uint64 `csv:"timestamp"`
	Record    string `csv:"record"`
}

// executeDump implements the dump tool.
func executeDump(cmd *cobra.Command, _ []string) error {
	if format != formatTable && format != formatCSV {
		return fmt.Errorf("unknown --format %q", format)
	}
	cmd.SilenceUsage = true

	rows, err := LoadRows(indexPath, withRecords)
	if err != nil {
		return err
	}
	if format == formatCSV {
		return gocsv.Marshal(rows, cmd.OutOrStdout())
	}
	return printTable(cmd.OutOrStdout(), rows, withRecords)
}

// LoadRows decodes the index file at path. With records set, the payload of
// every entry is read from the matching ".log" file.
func LoadRows(path string, records bool) ([]*Row, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", path, err)
	}
	entries, err := index.DecodeAll(path, buf)
	if err != nil {
		return nil, err
	}

	var (
		data     *os.File
		dataSize uint64
	)
	if records {
		dataPath := strings.TrimSuffix(path, index.FileExt) + segment.FileExt
		data, err = os.Open(dataPath)
		if err != nil {
			return nil, fmt.Errorf("open data file %s: %w", dataPath, err)
		}
		defer data.Close()
		fi, err := data.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat data file %s: %w", dataPath, err)
		}
		dataSize = uint64(fi.Size())
	}

	rows := make([]*Row, 0, len(entries))
	for _, e := range entries {
		r := &Row{Offset: e.Offset, Position: e.Position, Size: e.Size, Timestamp: e.Timestamp}
		if data != nil {
			if e.Position > dataSize || e.Size > dataSize-e.Position {
				return nil, fmt.Errorf("record %d wants %d bytes at position %d, data file holds %d",
					e.Offset, e.Size, e.Position, dataSize)
			}
			payload := make([]byte, e.Size)
			if _, err := data.ReadAt(payload, int64(e.Position)); err != nil {
				return nil, fmt.Errorf("read record %d at position %d: %w", e.Offset, e.Position, err)
			}
			r.Record = string(payload)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func printTable(w io.Writer, rows []*Row, records bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	header := "OFFSET\tPOSITION\tSIZE\tTIMESTAMP\t"
	if records {
		header += "RECORD\t"
	}
	fmt.Fprintln(tw, header)
	for _, r := range rows {
		line := fmt.Sprintf("%d\t%d\t%d\t%d\t", r.Offset, r.Position, r.Size, r.Timestamp)
		if records {
			line += fmt.Sprintf("%q\t", r.Record)
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}
