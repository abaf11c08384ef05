package main

import (
	"os"

	"github.com/edenmgr/unidl/cmd"
	"github.com/edenmgr/unidl/pkg/logging"
)

func main() {
	logging.SetupLogger()
	rootCMD := cmd.GetRootCommand()
	if err := rootCMD.Execute(); err != nil {
		os.Exit(1)
	}
}
