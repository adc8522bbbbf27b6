package cmd

import (
	"github.com/spf13/cobra"

	"github.com/alpacahq/logappender/cmd/connect"
	"github.com/alpacahq/logappender/cmd/read"
	"github.com/alpacahq/logappender/cmd/start"
	"github.com/alpacahq/logappender/cmd/tool"
	"github.com/alpacahq/logappender/cmd/write"
	"github.com/alpacahq/logappender/utils"
	"github.com/alpacahq/logappender/utils/log"
)

// flagPrintVersion set flag to show current logappender version.
var flagPrintVersion bool

// Execute builds the command tree and executes commands.
func Execute() error {
	// c is the root command.
	c := &cobra.Command{
		Use:   "logappender",
		Short: "Partitioned append-only commit log stored on the local filesystem",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Print version if specified.
			if flagPrintVersion {
				log.Info("version: %+v", utils.Tag)
				log.Info("commit hash: %+v", utils.GitHash)
				log.Info("utc build time: %+v", utils.BuildStamp)
				return nil
			}
			// Print information regarding usage.
			return cmd.Usage()
		},
	}

	// Adds subcommands and version flag.
	c.AddCommand(start.Cmd)
	c.AddCommand(write.Cmd)
	c.AddCommand(read.Cmd)
	c.AddCommand(connect.Cmd)
	c.AddCommand(tool.Cmd)
	c.Flags().BoolVarP(&flagPrintVersion, "version", "v", false, "show the version info and exit")

	defer log.Sync()
	return c.Execute()
}
