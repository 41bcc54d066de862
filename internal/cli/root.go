// Package cli provides the command-line interface for sdkctl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gamingsdk/sdk-go/internal/logging"
	"github.com/gamingsdk/sdk-go/internal/version"
)

var (
	// Global flags
	cfgFile             string
	token               string
	apiBaseURL          string
	apiVersion          int
	verbose             bool
	maxRatelimitTimeout time.Duration

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sdkctl",
		Short: "sdkctl - rate limit aware client for the gaming-sdk API",
		Long: `sdkctl ` + version.Version + ` - Built: ` + version.BuildTime + `
Command-line client for the gaming-sdk REST API.

Every request goes through the same rate limiter the SDK uses, so bucket
limits, 429 retries and global limits are handled the way an application
built on the SDK would handle them.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewLogger()
			if verbose {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "API token (overrides all other sources)")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api-url", "", "API base URL (overrides config)")
	rootCmd.PersistentFlags().IntVar(&apiVersion, "api-version", 0, "API version, 9 or 10 (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().DurationVar(&maxRatelimitTimeout, "max-ratelimit-timeout", 0,
		"Fail instead of waiting longer than this for a rate limit (0 = wait as asked, minimum 30s)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, cancelling...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)
	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newRequestCmd())
	rootCmd.AddCommand(newConfigCmd())
	AddShortcuts(rootCmd)
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}
