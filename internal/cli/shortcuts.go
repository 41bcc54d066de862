package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// AddShortcuts adds the convenience commands for common endpoints.
func AddShortcuts(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newMeCmd())
	rootCmd.AddCommand(newGatewayCmd())
}

// newMeCmd creates the 'me' command.
func newMeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the user the token belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getAPIClient()
			if err != nil {
				return err
			}
			defer client.Close()

			data, err := client.StaticLogin(GetContext(), client.Token())
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), data)
		},
	}
}

// newGatewayCmd creates the 'gateway' command.
func newGatewayCmd() *cobra.Command {
	var (
		encoding string
		compress bool
		dial     bool
	)

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Print the realtime gateway URL",
		Long: `Print the URL of the realtime gateway.

With --dial the websocket is opened through the configured proxy to check
that it is reachable, then closed again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getAPIClient()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx := GetContext()
			if !dial {
				url, err := client.GatewayConnectURL(ctx, encoding, compress)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			}

			conn, err := client.DialGateway(ctx, encoding, compress)
			if err != nil {
				return err
			}
			defer conn.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s\n", conn.RemoteAddr())
			return nil
		},
	}

	cmd.Flags().StringVar(&encoding, "encoding", "json", "Gateway payload encoding")
	cmd.Flags().BoolVar(&compress, "compress", false, "Request zlib-stream transport compression")
	cmd.Flags().BoolVar(&dial, "dial", false, "Open the websocket to check connectivity")
	return cmd
}
