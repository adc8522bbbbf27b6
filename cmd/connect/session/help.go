package session

import "fmt"

// functionHelp prints the available commands.
func (c *Client) functionHelp() {
	fmt.Fprintln(c.out, `
	Any line not starting with a backslash is appended to the topic as one record.

	Commands:

		\partition <id>|auto            pin writes to a partition, or let the partitioner choose
		\add                            add a partition to the topic
		\show <partition> <segment> [<offset>]
		                                print one record, or every record of a segment
		\stat                           print the segments of every partition
		\roll                           seal the active segment of the pinned partition (0 by default)
		\help, \?                       print this message
		\quit, \q, \stop                end the session`)
}
