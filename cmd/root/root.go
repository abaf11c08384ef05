package root

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	unidl "github.com/edenmgr/unidl/pkg"
	"github.com/edenmgr/unidl/pkg/cli"
	"github.com/edenmgr/unidl/pkg/config"
	"github.com/edenmgr/unidl/pkg/consumer"
	"github.com/edenmgr/unidl/pkg/download"
	"github.com/edenmgr/unidl/pkg/optname"
	"github.com/edenmgr/unidl/pkg/task"
)

const rootLongDesc = `
unidl

unidl downloads large release artifacts (firmware bundles, key files, mod archives) to disk with live progress
and speed reporting.

When aria2c is available on the search path or bundled under resources/bin, unidl hands the transfer to it and
downloads over 8 parallel connections. Otherwise, or when aria2c fails, it falls back to a built-in streaming HTTP
client. Interrupting unidl stops the transfer and removes every partial file it created.

After a successful download unidl can verify a sha256 digest and extract zip or (compressed) tar archives.

Settings are read from a JSON settings file (downloader_type, disable_ipv6, aria2_verbose_log), then overridden by
flags and UNIDL_* environment variables.
`

func GetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unidl [flags] <url> <dest>",
		Short: "unidl",
		Long:  rootLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.PersistentStartupProcessFlags()
		},
		RunE:    runRootCMD,
		Args:    cobra.ExactArgs(2),
		Example: `  unidl https://example.com/firmware.zip downloads/firmware.zip --extract firmware/`,
	}
	cmd.Flags().StringP(optname.Extract, "x", "", "Extract the downloaded archive into this directory")
	cmd.Flags().BoolP(optname.Force, "f", false, "Overwrite the destination and extracted files if they exist")
	cmd.Flags().String(optname.SHA256, "", "Expected sha256 digest of the downloaded file")
	cmd.SetUsageTemplate(cli.UsageTemplate)
	err := config.AddRootPersistentFlags(cmd)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	return cmd
}

func runRootCMD(cmd *cobra.Command, args []string) error {
	// After we run through the PreRun functions we want to silence usage from being printed
	// on all errors
	cmd.SilenceUsage = true

	urlString := args[0]
	dest := args[1]

	settings, err := config.SettingsFromViper()
	if err != nil {
		return err
	}
	log.Info().Str("url", urlString).
		Str("dest", dest).
		Str("backend", string(settings.Backend)).
		Bool("disable_ipv6", settings.DisableIPv6).
		Msg("Initiating")

	if err := cli.EnsureDestinationNotExist(dest); err != nil {
		return err
	}
	lock, err := cli.LockDestination(dest)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn().Err(err).Msg("Failed to release destination lock")
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	path, err := rootExecute(ctx, urlString, dest, settings)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// rootExecute is the main function of the program and encapsulates the general logic
// returns any/all errors to the caller.
func rootExecute(ctx context.Context, urlString, dest string, settings config.Settings) (string, error) {
	resolver := download.NewExecutableResolver(viper.GetString(optname.BundleDir))
	getter := &unidl.Getter{Downloader: unidl.NewDownloader(settings, resolver)}
	if digest := viper.GetString(optname.SHA256); digest != "" {
		getter.Consumers = append(getter.Consumers, &consumer.SHA256Verifier{Expected: digest})
	}
	if extractDir := viper.GetString(optname.Extract); extractDir != "" {
		getter.Consumers = append(getter.Consumers, &consumer.Extractor{
			DestDir:   extractDir,
			Overwrite: viper.GetBool(optname.Force),
		})
	}

	reporter := newProgressReporter(dest)
	t := task.New(getter, urlString, dest, task.Handlers{OnProgress: reporter.Report})
	// the task gets its own context so that an interrupt goes through Stop
	t.Start(context.Background())
	select {
	case <-ctx.Done():
		log.Info().Msg("Interrupted, stopping download")
		t.Stop()
	case <-t.Done():
	}

	outcome := t.Wait()
	switch {
	case outcome.Success:
		return outcome.Path, nil
	case outcome.Cancelled:
		return "", download.ErrCancelled
	default:
		return "", errors.New(outcome.Message)
	}
}
