package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/gamingsdk/sdk-go/internal/api"
	"github.com/gamingsdk/sdk-go/internal/config"
)

// loadConfig reads the config file and applies the environment and global
// flags on top of it. The token is resolved flag first, then config file,
// then environment; when none has one and stdin is a terminal it is
// prompted for.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		var err error
		if path, err = config.DefaultConfigPath(); err != nil {
			return nil, err
		}
	}

	cfg, err := config.LoadConfigFile(path)
	if err != nil {
		return nil, err
	}

	resolved, source := config.ResolveTokenSource(token, cfg)
	cfg.ApplyEnv()
	cfg.Token = resolved

	if apiBaseURL != "" {
		cfg.APIBaseURL = apiBaseURL
	}
	if apiVersion != 0 {
		cfg.APIVersion = apiVersion
	}
	if maxRatelimitTimeout != 0 {
		cfg.MaxRatelimitTimeout = maxRatelimitTimeout
	}

	if cfg.Token == "" && isTerminal(os.Stdin) {
		if cfg.Token, err = promptSecret("API token: "); err != nil {
			return nil, fmt.Errorf("failed to read token: %w", err)
		}
		source = "prompt"
	}
	if cfg.NeedsProxyPassword() && isTerminal(os.Stdin) {
		prompt := fmt.Sprintf("Proxy password for %s@%s: ", cfg.ProxyUser, cfg.ProxyHost)
		if cfg.ProxyPassword, err = promptSecret(prompt); err != nil {
			return nil, fmt.Errorf("failed to read proxy password: %w", err)
		}
	}

	GetLogger().Debug().Str("config", path).Str("token_source", source).Str("api_url", cfg.BaseURL()).Msg("Configuration loaded")
	return cfg, nil
}

// getAPIClient loads configuration and creates an API client.
// This is the standard way to get an API client in CLI commands.
func getAPIClient() (*api.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	client, err := api.NewClient(cfg, api.WithLogger(GetLogger()))
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return client, nil
}

// printResult writes a decoded response body: JSON values indented, text as
// is.
func printResult(w io.Writer, data any) error {
	if s, ok := data.(string); ok {
		if s != "" {
			_, err := fmt.Fprintln(w, s)
			return err
		}
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
