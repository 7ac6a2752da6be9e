package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/matheus3301/mixdesk/internal/rpc"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session and hub status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.GetStatus(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			fmt.Printf("Profile: %s\n", resp.Profile)
			fmt.Printf("Session: %s\n", resp.State)
			if resp.User != nil {
				fmt.Printf("User:    %s %s <%s>\n", resp.User.FirstName, resp.User.LastName, resp.User.Email)
			}
			if resp.LastError != "" {
				fmt.Printf("Error:   %s\n", resp.LastError)
			}
			fmt.Printf("Hub:     %s\n", resp.HubState)
			fmt.Printf("Uptime:  %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
			return nil
		})
	},
}

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with email and password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		email, password := loginEmail, loginPassword
		if email == "" {
			line, err := prompt("Email: ")
			if err != nil {
				return err
			}
			email = line
		}
		if password == "" {
			secret, err := readPassword()
			if err != nil {
				return err
			}
			password = secret
		}
		return withClient(cmd, func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.Login(ctx, email, password)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			fmt.Printf("Logged in as %s %s (%s)\n", resp.User.FirstName, resp.User.LastName, resp.User.ID)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *rpc.Client) error {
			if err := c.Logout(ctx); err != nil {
				return err
			}
			if !jsonFlag {
				fmt.Println("Logged out.")
			}
			return nil
		})
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email (prompted when empty)")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password (read from the terminal when empty)")
	rootCmd.AddCommand(statusCmd, loginCmd, logoutCmd)
}

func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}

func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal; pass --password")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(secret), nil
}
