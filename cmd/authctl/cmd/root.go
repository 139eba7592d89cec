package cmd

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-session-auth/client"
	"github.com/jrsteele09/go-session-auth/internal/logger"
)

var (
	serverURL      string
	account        string
	logLevel       string
	requestTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "authctl",
	Short: "authctl manages a session against a go-session-auth server",
	Long: `A command line client for the session auth server. The refresh token and
a copy of the user are kept in the OS keyring; the access token is never
written to disk.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetupWriter(os.Stderr, "DEV", logLevel)
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	defaultServer := os.Getenv("AUTHCTL_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "server base URL (env AUTHCTL_SERVER)")
	rootCmd.PersistentFlags().StringVar(&account, "account", "default", "keyring account the session is stored under")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
	rootCmd.PersistentFlags().DurationVar(&requestTimeout, "timeout", client.DefaultRequestTimeout, "timeout for each request")
}

// startController builds a keyring-backed controller and hydrates it
func startController(cmd *cobra.Command) (*client.Controller, error) {
	a, err := client.NewHTTPAPI(serverURL, client.WithHTTPLogger(log.Logger))
	if err != nil {
		return nil, err
	}
	persister, err := client.NewKeyringPersister(client.DefaultKeyringService, account)
	if err != nil {
		return nil, err
	}
	c, err := client.NewController(a, persister,
		client.WithRequestTimeout(requestTimeout),
		client.WithLogger(log.Logger))
	if err != nil {
		return nil, err
	}
	if err := c.Start(cmd.Context()); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

var errNotLoggedIn = errors.New("not logged in, run authctl login")

func requireSession(c *client.Controller) error {
	if !c.IsAuthenticated() {
		return errNotLoggedIn
	}
	return nil
}
