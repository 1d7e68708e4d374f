package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"escrowdesk/internal/client"

	"github.com/spf13/cobra"
)

const (
	flagServer = "server"
	flagToken  = "token"

	envServer = "P2PCTL_SERVER"
	envToken  = "P2PCTL_TOKEN"
)

type cliOptions struct {
	server string
	token  string
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "p2pctl",
		Short:         "Operator console for the escrow desk",
		Long:          `p2pctl drives listings and escrow deals through the escrow desk API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&opts.server, flagServer, envOr(envServer, "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&opts.token, flagToken, os.Getenv(envToken), "operator bearer token (defaults to $"+envToken+")")

	root.AddCommand(newLoginCmd(opts), newListingsCmd(opts), newDealCmd(opts))
	return root
}

func (o *cliOptions) client() *client.Client {
	return client.New(o.server, o.token)
}

func (o *cliOptions) authedClient() (*client.Client, error) {
	if o.token == "" {
		return nil, errors.New("no token: run p2pctl login and export " + envToken + ", or pass --token")
	}
	return o.client(), nil
}

func newLoginCmd(opts *cliOptions) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange operator credentials for a token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || password == "" {
				return errors.New("--username and --password are required")
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			token, err := opts.client().Login(ctx, username, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "export %s=%s\n", envToken, token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "operator username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "operator password")
	return cmd
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, 30*time.Second)
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
