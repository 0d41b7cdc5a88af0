package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/priyam-jain-2002/vibemarket/internal/connector"
	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage source passwords in the OS keychain",
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set [email]",
	Short: "Store the LinkedIn password (read from stdin)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, err := credentialEmail(args)
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stderr, "Password: ")
		pw, err := readSecret(cmd.InOrStdin())
		if err != nil {
			return err
		}
		account := connector.KeyringAccount(string(model.SourceLinkedIn), email)
		if err := connector.StorePassword(account, pw); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Stored password for %s\n", account)
		return nil
	},
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete [email]",
	Short: "Remove the stored LinkedIn password",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		email, err := credentialEmail(args)
		if err != nil {
			return err
		}
		account := connector.KeyringAccount(string(model.SourceLinkedIn), email)
		if err := connector.DeletePassword(account); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Deleted password for %s\n", account)
		return nil
	},
}

func init() {
	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsDeleteCmd)
	rootCmd.AddCommand(credentialsCmd)
}

// credentialEmail takes the email from args, else linkedin.email.
func credentialEmail(args []string) (string, error) {
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	if cfg != nil && cfg.LinkedIn.Email != "" {
		return cfg.LinkedIn.Email, nil
	}
	return "", eris.New("email is required (argument or linkedin.email)")
}

// readSecret reads one line from r without its line ending.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", eris.Wrap(err, "read password")
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", eris.New("password is empty")
	}
	return line, nil
}
