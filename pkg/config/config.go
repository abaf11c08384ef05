package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edenmgr/unidl/pkg/logging"
	"github.com/edenmgr/unidl/pkg/optname"
)

// HostToIPResolutionMap is a map of host:port to ip:port overrides used by the HTTP dialer
var HostToIPResolutionMap = make(map[string]string)

func AddRootPersistentFlags(cmd *cobra.Command) error {
	// Persistent Flags (applies to all commands/subcommands)
	cmd.PersistentFlags().String(optname.Backend, string(BackendExternalProcess), "Preferred transport backend (external-process, streaming-http)")
	cmd.PersistentFlags().String(optname.BundleDir, "", "Directory holding a bundled aria2c executable (default <executable dir>/resources/bin)")
	cmd.PersistentFlags().Duration(optname.ConnTimeout, defaultConnectTimeout, "Timeout for establishing a connection, format is <number><unit>, e.g. 10s")
	cmd.PersistentFlags().Duration(optname.ReadTimeout, defaultReadTimeout, "Timeout waiting for response headers once connected")
	cmd.PersistentFlags().Bool(optname.DisableIPv6, false, "Only connect over IPv4")
	cmd.PersistentFlags().String(optname.LoggingLevel, "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringSlice(optname.Resolve, []string{}, "Resolve hostnames to specific IPs, <hostname>:<port>:<ip>")
	cmd.PersistentFlags().IntP(optname.Retries, "r", 0, "Number of connect-phase retries for the built-in HTTP transport")
	cmd.PersistentFlags().String(optname.SettingsFile, "config.json", "Path to the application settings file")
	cmd.PersistentFlags().BoolP(optname.Verbose, "v", false, "Verbose mode (equivalent to --log-level debug)")
	cmd.PersistentFlags().Bool(optname.VerboseBackend, false, "Run the external downloader at info level and forward its output to the log")

	viper.SetEnvPrefix("UNIDL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		return fmt.Errorf("failed to bind persistent flags: %w", err)
	}

	// Hidden, for testing against local mirrors only
	if err := cmd.PersistentFlags().MarkHidden(optname.Resolve); err != nil {
		return fmt.Errorf("failed to hide flag %s: %w", optname.Resolve, err)
	}
	return nil
}

func PersistentStartupProcessFlags() error {
	if viper.GetBool(optname.Verbose) {
		viper.Set(optname.LoggingLevel, "debug")
	}
	logging.SetLevel(viper.GetString(optname.LoggingLevel))

	overrides, err := ResolveOverridesToMap(viper.GetStringSlice(optname.Resolve))
	if err != nil {
		return err
	}
	for k, v := range overrides {
		HostToIPResolutionMap[k] = v
	}
	if zerolog.GlobalLevel() == zerolog.DebugLevel {
		logger := logging.GetLogger()
		for key, elem := range HostToIPResolutionMap {
			logger.Debug().Str("host_port", key).Str("resolve_target", elem).Msg("Config")
		}
	}
	return nil
}

// ResolveOverridesToMap parses --resolve entries of the form <hostname>:<port>:<ip>.
func ResolveOverridesToMap(resolveHosts []string) (map[string]string, error) {
	var resolveOverrides map[string]string
	for _, resolveHost := range resolveHosts {
		split := strings.SplitN(resolveHost, ":", 3)
		if len(split) != 3 {
			return nil, fmt.Errorf("invalid resolve host format, expected <hostname>:port:<ip>, got: %s", resolveHost)
		}
		host, port, addr := split[0], split[1], split[2]
		if net.ParseIP(host) != nil {
			return nil, fmt.Errorf("invalid hostname specified, looks like an IP address: %s", host)
		}
		if net.ParseIP(addr) == nil {
			return nil, fmt.Errorf("invalid IP address: %s", addr)
		}
		if resolveOverrides == nil {
			resolveOverrides = make(map[string]string)
		}
		hostPort := net.JoinHostPort(host, port)
		target := net.JoinHostPort(addr, port)
		if existing, ok := resolveOverrides[hostPort]; ok && existing != target {
			return nil, fmt.Errorf("duplicate host:port specified: %s", hostPort)
		}
		resolveOverrides[hostPort] = target
	}
	return resolveOverrides, nil
}

const (
	defaultConnectTimeout = 30 * time.Second
	defaultReadTimeout    = 30 * time.Second
)
