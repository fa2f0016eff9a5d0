package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ScribeLabsAI/ScribeMi/internal/config"
	"github.com/ScribeLabsAI/ScribeMi/internal/mi"
	"github.com/ScribeLabsAI/ScribeMi/internal/tokenfile"
)

// envPassword lets scripts log in without a prompt.
const envPassword = "SCRIBEMI_PASSWORD"

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with your Scribe username and password",
		Long: "Sign in and save the session for later commands. The password is read from\n" +
			envPassword + " when set, otherwise from standard input.",
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().String("username", "", "Scribe account username")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved session",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the signed-in user",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := cmd.Context()

	username, err := cmd.Flags().GetString("username")
	if err != nil {
		return err
	}

	password, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}

	logger.Info("login started", slog.String("username", username))

	sm, err := newSessionManager(ctx, defaultHTTPClient(), logger)
	if err != nil {
		return err
	}

	if err := sm.Authenticate(ctx, mi.UsernamePassword(username, password)); err != nil {
		return err
	}

	tok, meta, ok := sessionToken(sm)
	if !ok {
		return mi.ErrNotAuthenticated
	}

	meta[tokenfile.MetaUsername] = username
	meta[tokenfile.MetaRegion] = resolvedCfg.API.Region

	if err := tokenfile.Save(config.TokenPath(), tok, meta); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	logger.Info("login successful", slog.String("username", username))
	statusf("Logged in as %s.\n", username)

	return nil
}

// Terminal hooks, swapped in tests.
var (
	isTerminal           = term.IsTerminal
	readTerminalPassword = term.ReadPassword
)

// readPassword takes the password from the environment. Otherwise it prompts
// on a terminal with echo disabled, or reads the first line of piped input.
func readPassword(r io.Reader) (string, error) {
	if pw := os.Getenv(envPassword); pw != "" {
		return pw, nil
	}

	if f, ok := r.(*os.File); ok && isTerminal(int(f.Fd())) {
		fmt.Fprint(os.Stderr, "Password: ")

		raw, err := readTerminalPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)

		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}

		if len(raw) == 0 {
			return "", fmt.Errorf("empty password")
		}

		return string(raw), nil
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}

	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", fmt.Errorf("empty password")
	}

	return pw, nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	logger := buildLogger()

	if err := tokenfile.Remove(config.TokenPath()); err != nil {
		return err
	}

	logger.Info("logout successful")
	statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	Username string    `json:"username"`
	UserID   string    `json:"user_id"`
	Region   string    `json:"region,omitempty"`
	Expiry   time.Time `json:"expiry"`
}

// runWhoami reports the saved session without contacting the backend.
func runWhoami(cmd *cobra.Command, _ []string) error {
	tok, meta, err := tokenfile.Load(config.TokenPath())
	if err != nil {
		return err
	}

	if tok == nil {
		return fmt.Errorf("%w: run 'scribemi login' first", mi.ErrNotAuthenticated)
	}

	out := whoamiOutput{
		Username: meta[tokenfile.MetaUsername],
		UserID:   meta[tokenfile.MetaUserID],
		Region:   meta[tokenfile.MetaRegion],
		Expiry:   tok.Expiry,
	}

	w := cmd.OutOrStdout()

	if flagJSON {
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "User:    %s\n", out.Username)
	fmt.Fprintf(w, "ID:      %s\n", out.UserID)

	if out.Region != "" {
		fmt.Fprintf(w, "Region:  %s\n", out.Region)
	}

	fmt.Fprintf(w, "Expires: %s\n", formatTime(out.Expiry))

	return nil
}
