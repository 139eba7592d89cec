package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-session-auth/client"
)

var (
	refreshInterval time.Duration
	accessTokenTTL  time.Duration
)

// keepaliveCmd holds the session open and lets the controller renew it on
// its timer until interrupted
var keepaliveCmd = &cobra.Command{
	Use:   "keepalive",
	Short: "Keep the session alive, renewing the access token before it expires",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := client.NewHTTPAPI(serverURL)
		if err != nil {
			return err
		}
		persister, err := client.NewKeyringPersister(client.DefaultKeyringService, account)
		if err != nil {
			return err
		}
		c, err := client.NewController(a, persister,
			client.WithRefreshInterval(refreshInterval),
			client.WithAccessTokenTTL(accessTokenTTL),
			client.WithRequestTimeout(requestTimeout))
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Start(cmd.Context()); err != nil {
			return err
		}
		if err := requireSession(c); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session active, renewing every %s. Ctrl-C to stop.\n", refreshInterval)

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		watch := time.NewTicker(time.Second)
		defer watch.Stop()
		for {
			select {
			case <-stop:
				return nil
			case <-watch.C:
				if !c.IsAuthenticated() {
					return errNotLoggedIn
				}
			}
		}
	},
}

func init() {
	keepaliveCmd.Flags().DurationVar(&refreshInterval, "interval", client.DefaultRefreshInterval, "renewal interval, shorter than the access token ttl")
	keepaliveCmd.Flags().DurationVar(&accessTokenTTL, "access-ttl", client.DefaultAccessTokenTTL, "access token lifetime used by the server")
	rootCmd.AddCommand(keepaliveCmd)
}
