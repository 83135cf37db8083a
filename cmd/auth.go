package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/launchbot/credentials"
)

// NewAuthCommand creates the auth command group.
func NewAuthCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored secrets",
		Long: `Manage the secrets launchbot keeps in the system keyring.

Secrets:
  databricks-token       DATABRICKS_TOKEN
  slack-bot-token        SLACK_BOT_TOKEN
  slack-signing-secret   SLACK_SIGNING_SECRET
  openai-api-key         OPENAI_API_KEY
  gemini-api-key         GEMINI_API_KEY

Environment variables take precedence over stored secrets.`,
	}

	cmd.AddCommand(newAuthSetCommand(deps))
	cmd.AddCommand(newAuthClearCommand(deps))
	cmd.AddCommand(newAuthStatusCommand(deps))

	return cmd
}

// newAuthSetCommand creates the 'auth set' subcommand.
func newAuthSetCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret in the keyring",
		Long: `Store a secret in the system keyring.

The value is read from the terminal without echo, or from standard input
when it is not a terminal.`,
		Example: `  launchbot auth set databricks-token
  echo "$TOKEN" | launchbot auth set slack-bot-token`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: credentials.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if _, ok := credentials.EnvVar(name); !ok {
				return unknownSecret(name)
			}

			value, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("Value for %s: ", name))
			if err != nil {
				return err
			}
			if err := deps.Secrets.Set(name, value); err != nil {
				return fmt.Errorf("storing %s: %w", name, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Stored %s: %s\n", name, credentials.Mask(value))
			if env, _ := credentials.EnvVar(name); os.Getenv(env) != "" {
				fmt.Fprintf(out, "Note: %s is set and takes precedence.\n", env)
			}
			return nil
		},
	}
}

// newAuthClearCommand creates the 'auth clear' subcommand.
func newAuthClearCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:       "clear <name>",
		Short:     "Remove a secret from the keyring",
		Example:   `  launchbot auth clear openai-api-key`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: credentials.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if _, ok := credentials.EnvVar(name); !ok {
				return unknownSecret(name)
			}
			if err := deps.Secrets.Delete(name); err != nil {
				return fmt.Errorf("removing %s: %w", name, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Removed %s from the keyring.\n", name)
			if env, _ := credentials.EnvVar(name); os.Getenv(env) != "" {
				fmt.Fprintf(out, "Note: %s is still set.\n", env)
			}
			return nil
		},
	}
}

// newAuthStatusCommand creates the 'auth status' subcommand.
func newAuthStatusCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show where each secret comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-22s %-8s %s\n", "SECRET", "SOURCE", "VALUE")
			for _, name := range credentials.Names() {
				value, source, err := deps.Secrets.Get(name)
				shown := credentials.Mask(value)
				switch {
				case errors.Is(err, credentials.ErrNotFound):
					shown = "(not set)"
				case err != nil:
					shown = "(" + err.Error() + ")"
				}
				fmt.Fprintf(out, "%-22s %-8s %s\n", name, source, shown)
			}
			return nil
		},
	}
}

func unknownSecret(name string) error {
	return fmt.Errorf("unknown secret %q: use one of %s", name, strings.Join(credentials.Names(), ", "))
}

// readSecret reads one line. A terminal is read without echo.
func readSecret(in io.Reader, prompt io.Writer, label string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("no value provided")
	}
	return line, nil
}
