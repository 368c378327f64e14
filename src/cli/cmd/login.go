package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sofmeright/dockergen/src/registry"
)

var (
	loginUser          string
	loginPasswordStdin bool
	loginForget        bool
)

var loginCmd = &cobra.Command{
	Use:   "login [registry]",
	Short: "Store push credentials in the OS keyring",
	Long: `Login saves a registry password in the OS keyring. Pushes that name a
username but no password read it from there.

The password is read from stdin so it never appears in shell history.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host := registry.DefaultHost
		if len(args) == 1 {
			host = args[0]
		}
		if loginUser == "" {
			return fmt.Errorf("--username is required")
		}

		if loginForget {
			if err := registry.Forget(host, loginUser); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed credentials for %s@%s\n", loginUser, registry.NormalizeHost(host))
			return nil
		}

		if !loginPasswordStdin {
			return fmt.Errorf("--password-stdin is required")
		}
		password, err := readPassword(cmd.InOrStdin())
		if err != nil {
			return err
		}
		if err := registry.Store(host, loginUser, password); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored credentials for %s@%s\n", loginUser, registry.NormalizeHost(host))
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUser, "username", "u", "", "registry username")
	loginCmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "read the password from stdin")
	loginCmd.Flags().BoolVar(&loginForget, "forget", false, "remove stored credentials instead")
	rootCmd.AddCommand(loginCmd)
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("empty password")
	}
	return password, nil
}
