package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/ini.v1"
)

// ConfigDir is the directory name under the user's config root.
const ConfigDir = "gamingsdk"

// Config file format:
//
//	[sdk]
//	api_version = 10
//	api_url = https://gaming-sdk.com/api/v10
//	token = <bot token>
//	max_ratelimit_timeout = 60
//	assume_unsync_clock = true
//	user_agent =
//	disable_http2 = false
//
//	[proxy]
//	mode = no-proxy
//	host =
//	port = 0
//	user =
//	no_proxy =
//	warmup = false
//
// The proxy password is never written; it is prompted for at runtime.

// DefaultConfigPath returns the default path for the config file.
//   - Windows: %USERPROFILE%\.config\gamingsdk\config
//   - Unix: ~/.config/gamingsdk/config
func DefaultConfigPath() (string, error) {
	var configDir string

	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		configDir = filepath.Join(userProfile, ".config", ConfigDir)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", ConfigDir)
	}

	return filepath.Join(configDir, "config"), nil
}

// LoadConfigFile loads configuration from an INI file.
// If the file doesn't exist, returns a config with default values and no error.
// If the file exists but is invalid, returns an error.
func LoadConfigFile(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	sdk := iniFile.Section("sdk")
	cfg.APIVersion = sdk.Key("api_version").MustInt(DefaultAPIVersion)
	cfg.APIBaseURL = sdk.Key("api_url").String()
	cfg.Token = sdk.Key("token").String()
	cfg.MaxRatelimitTimeout = secondsKey(sdk.Key("max_ratelimit_timeout"))
	cfg.UnsyncClock = sdk.Key("assume_unsync_clock").MustBool(true)
	cfg.UserAgent = sdk.Key("user_agent").String()
	cfg.DisableHTTP2 = sdk.Key("disable_http2").MustBool(false)

	proxy := iniFile.Section("proxy")
	cfg.ProxyMode = proxy.Key("mode").MustString(ProxyModeNone)
	cfg.ProxyHost = proxy.Key("host").String()
	cfg.ProxyPort = proxy.Key("port").MustInt(0)
	cfg.ProxyUser = proxy.Key("user").String()
	cfg.NoProxy = proxy.Key("no_proxy").String()
	cfg.ProxyWarmup = proxy.Key("warmup").MustBool(false)

	return cfg, nil
}

// secondsKey parses a float number of seconds. Malformed values read as zero.
func secondsKey(k *ini.Key) time.Duration {
	s := k.MustFloat64(0)
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

// SaveConfigFile saves configuration to an INI file.
// Creates parent directories if they don't exist.
// The token is stored in the file - ensure appropriate file permissions.
func SaveConfigFile(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	sdk, err := iniFile.NewSection("sdk")
	if err != nil {
		return fmt.Errorf("failed to create sdk section: %w", err)
	}
	sdk.Key("api_version").SetValue(strconv.Itoa(cfg.APIVersion))
	sdk.Key("api_url").SetValue(cfg.APIBaseURL)
	sdk.Key("token").SetValue(cfg.Token)
	sdk.Key("max_ratelimit_timeout").SetValue(strconv.FormatFloat(cfg.MaxRatelimitTimeout.Seconds(), 'f', -1, 64))
	sdk.Key("assume_unsync_clock").SetValue(strconv.FormatBool(cfg.UnsyncClock))
	sdk.Key("user_agent").SetValue(cfg.UserAgent)
	sdk.Key("disable_http2").SetValue(strconv.FormatBool(cfg.DisableHTTP2))

	proxy, err := iniFile.NewSection("proxy")
	if err != nil {
		return fmt.Errorf("failed to create proxy section: %w", err)
	}
	proxy.Key("mode").SetValue(cfg.ProxyMode)
	proxy.Key("host").SetValue(cfg.ProxyHost)
	proxy.Key("port").SetValue(strconv.Itoa(cfg.ProxyPort))
	proxy.Key("user").SetValue(cfg.ProxyUser)
	proxy.Key("no_proxy").SetValue(cfg.NoProxy)
	proxy.Key("warmup").SetValue(strconv.FormatBool(cfg.ProxyWarmup))

	// Temporary file + rename so a crash never leaves a half-written config.
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	// The token is a credential.
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}
