package cmd

import (
	"github.com/spf13/cobra"

	"github.com/edenmgr/unidl/cmd/resolve"
	"github.com/edenmgr/unidl/cmd/root"
	"github.com/edenmgr/unidl/cmd/version"
)

func GetRootCommand() *cobra.Command {
	rootCMD := root.GetCommand()
	rootCMD.AddCommand(resolve.GetCommand())
	rootCMD.AddCommand(version.VersionCMD)
	return rootCMD
}
