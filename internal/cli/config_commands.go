package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/gamingsdk/sdk-go/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage sdkctl configuration",
		Long: `Configuration management commands for sdkctl.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())
	return configCmd
}

func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for sdkctl.

The configuration is saved to ~/.config/gamingsdk/config unless --config is
given. Use --force to overwrite an existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			cfg, err := runConfigWizard(bufio.NewReader(cmd.InOrStdin()), out, isTerminal(os.Stdin))
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.SaveConfigFile(cfg, path); err != nil {
				return err
			}

			fmt.Fprintf(out, "\nConfiguration saved to %s\n", path)
			GetLogger().Debug().Str("config", path).Msg("Configuration written")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	return cmd
}

// runConfigWizard asks for each setting in turn. With secret set the token is
// read from the terminal without echo.
func runConfigWizard(r *bufio.Reader, w io.Writer, secret bool) (*config.Config, error) {
	cfg := config.NewConfig()

	fmt.Fprintln(w, "gaming-sdk Configuration Setup")
	fmt.Fprintln(w, "==============================")
	fmt.Fprintln(w)

	var err error
	if secret {
		cfg.Token, err = promptSecret("API token: ")
	} else {
		cfg.Token, err = promptLine(r, w, "API token", "")
	}
	if err != nil {
		return nil, err
	}

	versionInput, err := promptLine(r, w, "API version", strconv.Itoa(config.DefaultAPIVersion))
	if err != nil {
		return nil, err
	}
	if cfg.APIVersion, err = strconv.Atoi(versionInput); err != nil {
		return nil, fmt.Errorf("invalid API version %q", versionInput)
	}

	if cfg.APIBaseURL, err = promptLine(r, w, "API base URL (empty for default)", ""); err != nil {
		return nil, err
	}

	timeoutInput, err := promptLine(r, w, "Max rate limit wait in seconds (0 = unlimited)", "0")
	if err != nil {
		return nil, err
	}
	seconds, err := strconv.ParseFloat(timeoutInput, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit wait %q", timeoutInput)
	}
	cfg.MaxRatelimitTimeout = time.Duration(seconds * float64(time.Second))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Proxy Settings (press Enter for defaults)")
	fmt.Fprintln(w, "-----------------------------------------")
	if cfg.ProxyMode, err = promptLine(r, w, "Proxy mode (no-proxy, system, basic, ntlm)", config.ProxyModeNone); err != nil {
		return nil, err
	}
	if cfg.ProxyMode == config.ProxyModeBasic || cfg.ProxyMode == config.ProxyModeNTLM {
		if cfg.ProxyHost, err = promptLine(r, w, "Proxy host", ""); err != nil {
			return nil, err
		}
		portInput, err := promptLine(r, w, "Proxy port", "8080")
		if err != nil {
			return nil, err
		}
		if cfg.ProxyPort, err = strconv.Atoi(portInput); err != nil {
			return nil, fmt.Errorf("invalid proxy port %q", portInput)
		}
		if cfg.ProxyUser, err = promptLine(r, w, "Proxy user (empty for none)", ""); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			cfg, err := config.LoadConfigFile(path)
			if err != nil {
				return err
			}
			resolved, source := config.ResolveTokenSource(token, cfg)
			cfg.ApplyEnv()
			cfg.Token = resolved
			printConfig(cmd.OutOrStdout(), path, cfg, source)
			return nil
		},
	}
}

func printConfig(w io.Writer, path string, cfg *config.Config, tokenSource string) {
	fmt.Fprintf(w, "Config file:           %s\n", path)
	fmt.Fprintf(w, "API version:           %d\n", cfg.APIVersion)
	fmt.Fprintf(w, "API URL:               %s\n", cfg.BaseURL())
	if cfg.Token != "" {
		fmt.Fprintf(w, "Token:                 %s (from %s)\n", maskToken(cfg.Token), tokenSource)
	} else {
		fmt.Fprintln(w, "Token:                 <not set>")
	}
	if timeout := cfg.EffectiveRatelimitTimeout(); timeout > 0 {
		fmt.Fprintf(w, "Max rate limit wait:   %s\n", timeout)
	} else {
		fmt.Fprintln(w, "Max rate limit wait:   unlimited")
	}
	fmt.Fprintf(w, "Assume unsync clock:   %t\n", cfg.UnsyncClock)
	fmt.Fprintf(w, "Proxy mode:            %s\n", cfg.ProxyMode)
	if cfg.ProxyHost != "" {
		fmt.Fprintf(w, "Proxy:                 %s:%d\n", cfg.ProxyHost, cfg.ProxyPort)
	}
}

// maskToken keeps only the last four characters.
func maskToken(t string) string {
	if len(t) <= 4 {
		return "****"
	}
	return "****" + t[len(t)-4:]
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
