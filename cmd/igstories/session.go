package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"igstories/pkg/session"
	"igstories/pkg/ui"
)

var (
	loginUsername    string
	loginSessionID   string
	loginCSRFToken   string
	loginUserAgent   string
	forgetPassphrase bool
)

// sessionCmd represents the session command
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the saved login session",
	Long: `Manage the login session used by the session strategy.

The session cookies are encrypted with AES-256-GCM. The key is derived from a
passphrase kept in the system keychain, in a 0600 file when no keychain is
available, or in the IGSTORIES_PASSPHRASE environment variable.

Never share your session cookies or the session directory!`,
}

// sessionLoginCmd represents the session login command
var sessionLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save session cookies",
	Long: `Save the cookies of a logged-in browser session.

Values not given as flags are prompted for; cookie values are hidden as you
type.

To get these values:
1. Log into the platform in your browser
2. Open Developer Tools (F12)
3. Go to Application/Storage > Cookies
4. Copy the sessionid and csrftoken values`,
	Example: `  # Interactive
  igstories session login

  # Non-interactive
  igstories session login --username me --session-id '1234%3Aabc...' --csrf-token 'YTQH...'`,
	Args: cobra.NoArgs,
	RunE: runSessionLogin,
}

// sessionLogoutCmd represents the session logout command
var sessionLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete the saved session",
	Args:  cobra.NoArgs,
	RunE:  runSessionLogout,
}

// sessionStatusCmd represents the session status command
var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the saved session with secrets masked",
	Args:  cobra.NoArgs,
	RunE:  runSessionStatus,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLoginCmd)
	sessionCmd.AddCommand(sessionLogoutCmd)
	sessionCmd.AddCommand(sessionStatusCmd)

	sessionLoginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "account username")
	sessionLoginCmd.Flags().StringVar(&loginSessionID, "session-id", "", "sessionid cookie value")
	sessionLoginCmd.Flags().StringVar(&loginCSRFToken, "csrf-token", "", "csrftoken cookie value")
	sessionLoginCmd.Flags().StringVar(&loginUserAgent, "user-agent", "", "user agent of the browser the cookies came from")
	sessionLogoutCmd.Flags().BoolVar(&forgetPassphrase, "forget-passphrase", false, "also remove the passphrase from the keychain")
}

func openSessionStore() (*session.Store, string, error) {
	dir := cfg.Strategies.Session.StoreDir
	if dir == "" {
		var err error
		if dir, err = session.DefaultDir(); err != nil {
			return nil, "", err
		}
	}
	store, err := session.NewStore(dir, nil)
	if err != nil {
		return nil, "", err
	}
	return store, dir, nil
}

func runSessionLogin(cmd *cobra.Command, args []string) error {
	store, _, err := openSessionStore()
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	if loginUsername == "" {
		fmt.Print("Username: ")
		if loginUsername, err = readLine(reader); err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
	}
	if loginSessionID == "" {
		fmt.Print("sessionid cookie value: ")
		if loginSessionID, err = readSecret(reader); err != nil {
			return fmt.Errorf("failed to read session id: %w", err)
		}
	}
	if loginCSRFToken == "" {
		fmt.Print("csrftoken cookie value: ")
		if loginCSRFToken, err = readSecret(reader); err != nil {
			return fmt.Errorf("failed to read csrf token: %w", err)
		}
	}

	sess := &session.Session{
		Username:  strings.TrimPrefix(strings.TrimSpace(loginUsername), "@"),
		SessionID: strings.TrimSpace(loginSessionID),
		CSRFToken: strings.TrimSpace(loginCSRFToken),
		UserAgent: strings.TrimSpace(loginUserAgent),
	}
	sess.DeriveUserID()

	if store.Exists() {
		printer.Warning("Replacing the saved session")
	}
	if err := store.Save(sess); err != nil {
		return err
	}

	printer.Success("Session saved to %s", store.Path())
	return nil
}

func runSessionLogout(cmd *cobra.Command, args []string) error {
	store, dir, err := openSessionStore()
	if err != nil {
		return err
	}

	if err := store.Delete(); err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			return err
		}
		printer.Info("No saved session")
	} else {
		printer.Success("Session deleted")
	}

	if forgetPassphrase {
		if err := session.NewKeyringPassphrase(dir).Forget(); err != nil {
			return err
		}
		printer.Success("Passphrase removed from the keychain")
	}
	return nil
}

func runSessionStatus(cmd *cobra.Command, args []string) error {
	store, _, err := openSessionStore()
	if err != nil {
		return err
	}

	sess, err := store.Load()
	if errors.Is(err, session.ErrNotFound) {
		printer.Info("No saved session. Run 'igstories session login' to add one.")
		return nil
	}
	if err != nil {
		return err
	}

	m := sess.Masked()
	t := ui.NewTableFor(printer, []string{"field", "value"})
	t.AddRow("username", m.Username)
	t.AddRow("sessionid", m.SessionID)
	t.AddRow("csrftoken", m.CSRFToken)
	t.AddRow("ds_user_id", m.DSUserID)
	t.AddRow("user agent", m.UserAgent)
	t.AddRow("saved", m.SavedAt.Format("2006-01-02 15:04:05"))
	t.AddRow("file", store.Path())
	return t.Render()
}

func readLine(reader *bufio.Reader) (string, error) {
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// readSecret reads without echo when stdin is a terminal
func readSecret(reader *bufio.Reader) (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return string(secret), nil
		}
	}
	return readLine(reader)
}
