package resolve

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edenmgr/unidl/pkg/config"
	"github.com/edenmgr/unidl/pkg/download"
	"github.com/edenmgr/unidl/pkg/optname"
)

const ResolveCMDName = "resolve"

func GetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   ResolveCMDName,
		Short: "print the transport that downloads would use",
		Long:  "Resolve the external downloader the same way a download does and print which transport would be used",
		Args:  cobra.NoArgs,
		RunE:  runResolveCMD,
	}
}

func runResolveCMD(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	settings, err := config.SettingsFromViper()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if settings.Backend != config.BackendExternalProcess {
		_, err := fmt.Fprintf(out, "backend: %s (preferred by settings)\n", config.BackendStreamingHTTP)
		return err
	}

	resolver := download.NewExecutableResolver(viper.GetString(optname.BundleDir))
	path, err := resolver.Resolve(runtime.GOOS)
	if errors.Is(err, download.ErrExecutableNotFound) {
		_, err := fmt.Fprintf(out, "backend: %s (aria2c not found)\n", config.BackendStreamingHTTP)
		return err
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "backend: %s\nexecutable: %s\n", config.BackendExternalProcess, path)
	return err
}
