package config

import "os"

// Token sources reported by ResolveTokenSource.
const (
	TokenSourceFlag        = "flag"
	TokenSourceConfigFile  = "config-file"
	TokenSourceEnvironment = "environment"
)

// ResolveTokenSource returns the token to authenticate with and where it came
// from, checking in priority order:
//  1. flag, if non-empty (e.g. --token)
//  2. the token stored in cfg, as loaded from the config file
//  3. the GAMINGSDK_TOKEN environment variable
//
// Both values are empty when no source has a token.
func ResolveTokenSource(flag string, cfg *Config) (token, source string) {
	if flag != "" {
		return flag, TokenSourceFlag
	}
	if cfg != nil && cfg.Token != "" {
		return cfg.Token, TokenSourceConfigFile
	}
	if env := os.Getenv(EnvToken); env != "" {
		return env, TokenSourceEnvironment
	}
	return "", ""
}
