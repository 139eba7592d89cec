package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	name     string
	email    string
	password string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := startController(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		user, err := c.Register(cmd.Context(), name, email, password)
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s). Log in with authctl login.\n", user.Email, user.ID)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session in the keyring",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := startController(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		user, err := c.Login(cmd.Context(), email, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Welcome back, %s!\n", user.Name)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := startController(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Logout(cmd.Context()); err != nil {
			return fmt.Errorf("local session cleared, server logout failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print the profile of the logged in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := startController(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		if err := requireSession(c); err != nil {
			return err
		}

		user, err := c.Profile(cmd.Context())
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(user, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Renew the access token now",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := startController(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		if err := requireSession(c); err != nil {
			return err
		}

		if err := c.RefreshNow(cmd.Context()); err != nil {
			return fmt.Errorf("refresh failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Access token renewed")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session state",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := startController(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		s := c.Session()
		fmt.Fprintf(cmd.OutOrStdout(), "state: %s\n", s.State)
		if s.User != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "user:  %s (%s)\n", s.User.Email, s.User.Role)
		}
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&name, "name", "", "display name")
	for _, c := range []*cobra.Command{registerCmd, loginCmd} {
		c.Flags().StringVar(&email, "email", "", "account email")
		c.Flags().StringVar(&password, "password", "", "account password")
		_ = c.MarkFlagRequired("email")
		_ = c.MarkFlagRequired("password")
	}
	_ = registerCmd.MarkFlagRequired("name")

	rootCmd.AddCommand(registerCmd, loginCmd, logoutCmd, whoamiCmd, refreshCmd, statusCmd)
}
