// Package session
// This file is the hub of the `session` package. The `Client` struct defined here
// holds the open topic and has the responsibility of interpreting user inputs.
package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"code.cloudfoundry.org/bytefmt"
	"github.com/chzyer/readline"

	"github.com/alpacahq/logappender/topic"
)

func NewClient(t *topic.Topic, out io.Writer) *Client {
	return &Client{topic: t, out: out}
}

type Client struct {
	topic *topic.Topic
	out   io.Writer
	// pinned is the partition every record goes to; nil lets the partitioner choose.
	pinned *uint64
}

// Read kicks off the buffer reading process.
func (c *Client) Read() error {
	// Build reader.
	r, err := newReader()
	if err != nil {
		return err
	}
	defer r.Close()

	fmt.Fprintf(os.Stderr, "Connected to %s\n", c.topic.Path())
	fmt.Fprintf(os.Stderr, "Type `\\help` to see command options\n")

	// User input evaluation loop.
	for {
		// Read input.
		line, err := r.Readline()

		// Terminate evaluation.
		if errors.Is(err, io.EOF) {
			return nil
		}

		// Printed interrupt prompt.
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}

		// Print error.
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			continue
		}

		if quit := c.Eval(line); quit {
			return nil
		}
	}
}

// Eval runs one line of input and reports whether the session should end.
// Lines starting with a backslash are commands, anything else is appended
// as a record.
func (c *Client) Eval(line string) (quit bool) {
	trimmed := strings.TrimSpace(line)
	args := strings.Fields(trimmed)

	var err error
	switch {
	case trimmed == "":
		return false
	case trimmed == `\stop`, trimmed == `\quit`, trimmed == `\q`, trimmed == "exit":
		return true
	case trimmed == "help", strings.HasPrefix(trimmed, `\help`), strings.HasPrefix(trimmed, `\?`):
		c.functionHelp()
	case strings.HasPrefix(trimmed, `\partition`):
		err = c.partition(args[1:])
	case strings.HasPrefix(trimmed, `\add`):
		err = c.addPartition()
	case strings.HasPrefix(trimmed, `\show`):
		err = c.show(args[1:])
	case strings.HasPrefix(trimmed, `\stat`):
		c.stat()
	case strings.HasPrefix(trimmed, `\roll`):
		err = c.roll()
	case strings.HasPrefix(trimmed, `\`):
		err = fmt.Errorf("unknown command %s", args[0])
	default:
		err = c.write(line)
	}
	if err != nil {
		fmt.Fprintf(c.out, "ERROR: %v\n", err)
	}
	return false
}

func (c *Client) write(line string) error {
	if c.pinned != nil {
		return c.topic.WriteToPartition(*c.pinned, []byte(line))
	}
	return c.topic.Write([]byte(line))
}

// partition pins writes to one partition, or unpins them with "auto".
func (c *Client) partition(args []string) error {
	if len(args) != 1 {
		return errors.New(`usage: \partition <id>|auto`)
	}
	if args[0] == "auto" {
		c.pinned = nil
		fmt.Fprintln(c.out, "writes follow the partitioner")
		return nil
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid partition id %q", args[0])
	}
	if _, ok := c.topic.Partition(id); !ok {
		return topic.UnknownPartitionError(fmt.Sprintf("%s/%d", c.topic.Name(), id))
	}
	c.pinned = &id
	fmt.Fprintf(c.out, "writes go to partition %d\n", id)
	return nil
}

func (c *Client) addPartition() error {
	p, err := c.topic.AddPartition()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "added partition %d\n", p.ID())
	return nil
}

// show prints records: \show <partition> <segment> [<offset>].
func (c *Client) show(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errors.New(`usage: \show <partition> <segment> [<offset>]`)
	}
	ids := make([]uint64, len(args))
	for i, a := range args {
		n, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", a)
		}
		ids[i] = n
	}
	p, ok := c.topic.Partition(ids[0])
	if !ok {
		return topic.UnknownPartitionError(fmt.Sprintf("%s/%d", c.topic.Name(), ids[0]))
	}
	s, ok := p.Segment(ids[1])
	if !ok {
		return fmt.Errorf("segment %d not found in %s", ids[1], p.Path())
	}

	first, last := uint64(0), s.Records()
	if len(ids) == 3 {
		first, last = ids[2], ids[2]+1
	}
	for o := first; o < last; o++ {
		data, ok, err := p.Read(ids[1], o)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("offset %d not found in segment %d", o, ids[1])
		}
		fmt.Fprintf(c.out, "%d\t%s\n", o, data)
	}
	return nil
}

func (c *Client) stat() {
	for _, p := range c.topic.Partitions() {
		active := p.ActiveSegment()
		if active == nil {
			fmt.Fprintf(c.out, "partition %d: no segment yet\n", p.ID())
			continue
		}
		fmt.Fprintf(c.out, "partition %d: %d sealed segments, active segment %d holds %d records (%s)\n",
			p.ID(), len(p.SealedSegments()), active.ID(), active.Records(), bytefmt.ByteSize(active.BytesConsumed()))
	}
}

func (c *Client) roll() error {
	id := uint64(0)
	if c.pinned != nil {
		id = *c.pinned
	}
	p, ok := c.topic.Partition(id)
	if !ok {
		return topic.UnknownPartitionError(fmt.Sprintf("%s/%d", c.topic.Name(), id))
	}
	if err := p.Roll(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "partition %d now writes to segment %d\n", id, p.ActiveSegment().ID())
	return nil
}

func newReader() (*readline.Instance, error) {
	// Determine history file path.
	usr, err := user.Current()
	if err != nil {
		return nil, errors.New("unable to obtain home directory")
	}
	history := filepath.Join(usr.HomeDir, ".logappenderHistory")

	// Register commands with autocompletion.
	autoComplete := readline.NewPrefixCompleter(
		readline.PcItem(`\partition`),
		readline.PcItem(`\add`),
		readline.PcItem(`\show`),
		readline.PcItem(`\stat`),
		readline.PcItem(`\roll`),
		readline.PcItem(`\help`),
		readline.PcItem(`\quit`),
		readline.PcItem(`\q`),
		readline.PcItem(`\?`),
		readline.PcItem(`\stop`),
	)

	// Build config.
	config := &readline.Config{
		Prompt:          "\033[31m»\033[0m ",
		HistoryFile:     history,
		AutoComplete:    autoComplete,
		InterruptPrompt: "\nInterrupt, Press Ctrl+D to exit",
		EOFPrompt:       "exit",
	}

	// return reader.
	return readline.NewEx(config)
}
