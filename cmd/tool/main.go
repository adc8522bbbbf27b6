package tool

import (
	"github.com/spf13/cobra"

	"github.com/alpacahq/logappender/cmd/tool/dump"
	"github.com/alpacahq/logappender/cmd/tool/verify"
)

const (
	toolUsage     = "tool"
	toolShortDesc = "Executes tools as subcommands"
	toolLongDesc  = "This command executes the specified offline tool against a data directory"
	toolExample   = "logappender tool verify [flags]"
)

var (
	// Cmd is the tool command.
	Cmd = &cobra.Command{
		Use:        toolUsage,
		Short:      toolShortDesc,
		Long:       toolLongDesc,
		Aliases:    []string{"t"},
		SuggestFor: []string{"verify", "dump"},
		Example:    toolExample,
	}
)

// nolint:gochecknoinits // cobra's standard way to add subcommands
func init() {
	Cmd.AddCommand(verify.Cmd)
	Cmd.AddCommand(dump.Cmd)
}
