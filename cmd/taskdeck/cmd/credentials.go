package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"taskdeck/backend/rest"
	"taskdeck/internal/credentials"
)

// newCredentialsCmd creates the 'credentials' subcommand for token management
func newCredentialsCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	credentialsCmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the API token",
		Long:  "Store, check and remove the API token for the configured server and account.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	credentialsCmd.AddCommand(newCredentialsSetCmd(stdout, cfg))
	credentialsCmd.AddCommand(newCredentialsGetCmd(stdout, cfg))
	credentialsCmd.AddCommand(newCredentialsDeleteCmd(stdout, cfg))

	return credentialsCmd
}

func (c *Config) handler(stdout io.Writer) *credentials.CLIHandler {
	var tty credentials.TerminalReader
	if c.Stdin == nil {
		tty = credentials.StdinTerminal()
	}
	return credentials.NewCLIHandler(c.manager(), c.stdin(), stdout, tty)
}

// newCredentialsSetCmd creates the 'credentials set' subcommand
func newCredentialsSetCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "set",
		Short: "Store the API token in the system keyring",
		Long:  "Prompt for the API token and store it in the system keyring (macOS Keychain, Windows Credential Manager, or Linux Secret Service).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd, cfg)
			if err != nil {
				return err
			}
			return cfg.handler(stdout).Set(cmd.Context(), c.Server.BaseURL, c.Server.Account)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// staticToken is a TokenSource for checking one token.
type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

// newCredentialsGetCmd creates the 'credentials get' subcommand
func newCredentialsGetCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show where the API token comes from",
		Long:  "Look the token up in the keyring, then in the TASKDECK_TOKEN environment variable, and show the source. With --verify the token is checked against the server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd, cfg)
			if err != nil {
				return err
			}
			var verify credentials.Verifier
			if v, _ := cmd.Flags().GetBool("verify"); v {
				verify = func(ctx context.Context, token string) error {
					client, err := rest.New(rest.Config{
						BaseURL:    c.Server.BaseURL,
						Timeout:    c.GetTimeout(),
						AuthScheme: c.GetAuthScheme(),
					}, staticToken(token))
					if err != nil {
						return err
					}
					defer func() { _ = client.Close() }()
					return client.CheckAuth(ctx)
				}
			}
			return cfg.handler(stdout).Get(cmd.Context(), c.Server.BaseURL, c.Server.Account, jsonFlag(cmd), verify)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().Bool("verify", false, "Check the token against the server")
	return cmd
}

// newCredentialsDeleteCmd creates the 'credentials delete' subcommand
func newCredentialsDeleteCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Remove the API token from the system keyring",
		Long:  "Remove the stored token from the system keyring. The TASKDECK_TOKEN environment variable is not affected.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd, cfg)
			if err != nil {
				return err
			}
			return cfg.handler(stdout).Delete(cmd.Context(), c.Server.BaseURL, c.Server.Account)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}
