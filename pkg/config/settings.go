package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/edenmgr/unidl/pkg/logging"
	"github.com/edenmgr/unidl/pkg/optname"
)

// Backend names a transport strategy preference.
type Backend string

const (
	BackendExternalProcess Backend = "external-process"
	BackendStreamingHTTP   Backend = "streaming-http"
)

// Keys understood in the application settings file.
const (
	keyDownloaderType = "downloader_type"
	keyDisableIPv6    = "disable_ipv6"
	keyVerboseLog     = "aria2_verbose_log"
)

var ErrUnknownBackend = errors.New("unknown backend")

// Settings is the read-only snapshot handed to the downloader for one request.
type Settings struct {
	Backend        Backend
	DisableIPv6    bool
	Verbose        bool
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	// MaxRetries applies to the connect phase of the built-in HTTP transport only.
	MaxRetries int
}

// DefaultSettings is what the downloader runs with when no provider is available.
func DefaultSettings() Settings {
	return Settings{
		Backend:        BackendExternalProcess,
		ConnectTimeout: defaultConnectTimeout,
		ReadTimeout:    defaultReadTimeout,
	}
}

// ParseBackend accepts both the canonical names and the legacy settings-file values.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(BackendExternalProcess), "aria2", "aria2c":
		return BackendExternalProcess, nil
	case string(BackendStreamingHTTP), "requests", "http", "internal":
		return BackendStreamingHTTP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}

// LoadSettings reads the application settings file. On any error the returned Settings are still
// usable: fields that could not be read keep their defaults.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()

	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return settings, fmt.Errorf("error reading settings file %s: %w", path, err)
	}

	if v.IsSet(keyDownloaderType) {
		backend, err := ParseBackend(v.GetString(keyDownloaderType))
		if err != nil {
			logger := logging.GetLogger()
			logger.Warn().Err(err).Str("settings", path).Msg("Ignoring downloader preference")
		} else {
			settings.Backend = backend
		}
	}
	settings.DisableIPv6 = v.GetBool(keyDisableIPv6)
	settings.Verbose = v.GetBool(keyVerboseLog)
	return settings, nil
}

// SettingsFromViper builds the request snapshot for CLI callers: the settings file first, then
// any explicitly set flags or UNIDL_* environment variables on top.
func SettingsFromViper() (Settings, error) {
	logger := logging.GetLogger()
	path := viper.GetString(optname.SettingsFile)

	settings, err := LoadSettings(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug().Str("settings", path).Msg("No settings file, using defaults")
		} else {
			logger.Warn().Err(err).Msg("Settings unavailable, using defaults")
		}
	}

	if viper.IsSet(optname.Backend) {
		backend, err := ParseBackend(viper.GetString(optname.Backend))
		if err != nil {
			return settings, err
		}
		settings.Backend = backend
	}
	if viper.IsSet(optname.DisableIPv6) {
		settings.DisableIPv6 = viper.GetBool(optname.DisableIPv6)
	}
	if viper.IsSet(optname.VerboseBackend) {
		settings.Verbose = viper.GetBool(optname.VerboseBackend)
	}
	if d := viper.GetDuration(optname.ConnTimeout); d > 0 {
		settings.ConnectTimeout = d
	}
	if d := viper.GetDuration(optname.ReadTimeout); d > 0 {
		settings.ReadTimeout = d
	}
	settings.MaxRetries = viper.GetInt(optname.Retries)
	return settings, nil
}
