package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jfmyers9/desky/internal/apperr"
	"github.com/jfmyers9/desky/internal/auth"
	"github.com/jfmyers9/desky/internal/config"
	"github.com/jfmyers9/desky/internal/server"
	"github.com/jfmyers9/desky/internal/store"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize desky with your Spotify account",
	Long: `Authorize desky to read and control Spotify playback.

This command will guide you through the Spotify authorization process:
1. You'll be prompted for your Spotify application's client id and secret
2. The authorization page opens in your browser
3. After you approve, Spotify redirects to desky://callback which hands
   the code to desky; you can also paste the redirect URL here

You can create an application at: https://developer.spotify.com/dashboard
Add desky://callback as a redirect URI in the application settings.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored Spotify credentials",
	Long: `Close the Spotify session and delete the stored tokens.

The client id and secret in the config file are kept.`,
	RunE: runLogout,
}

var callbackCmd = &cobra.Command{
	Use:   "callback <url>",
	Short: "Complete authorization from a desky:// redirect",
	Long: `Complete authorization from a desky:// redirect URL.

This is the handler registered for the desky:// scheme by 'desky install'.
The redirect is handed to the running daemon, or handled here when no
daemon is reachable.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := setupLogger(logFile, logLevel)
		if err := deliverRedirect(cmd.Context(), cfg, args[0], logger); err != nil {
			return err
		}
		fmt.Println("✓ Logged in to Spotify")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(callbackCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("Spotify Authorization")
	fmt.Println("=====================")
	fmt.Println()
	fmt.Println("You can create an application at: https://developer.spotify.com/dashboard")
	fmt.Printf("Use %s as the redirect URI.\n", cfg.Spotify.RedirectURI)
	fmt.Println()

	if cfg.Spotify.ClientID != "" && cfg.Spotify.ClientSecret != "" {
		fmt.Printf("Found existing application credentials.\n")
		fmt.Printf("Client ID: %s\n", cfg.Spotify.ClientID)
		fmt.Print("\nUse existing credentials? [Y/n]: ")
		response, err := reader.ReadString('\n')
		if err != nil {
			response = "y"
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "" && response != "y" && response != "yes" {
			cfg.Spotify.ClientID = ""
			cfg.Spotify.ClientSecret = ""
		}
	}

	if cfg.Spotify.ClientID == "" {
		fmt.Print("Enter your Spotify Client ID: ")
		id, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read client id: %w", err)
		}
		cfg.Spotify.ClientID = strings.TrimSpace(id)
	}

	if cfg.Spotify.ClientSecret == "" {
		fmt.Print("Enter your Spotify Client Secret: ")
		secret, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read client secret: %w", err)
		}
		cfg.Spotify.ClientSecret = strings.TrimSpace(secret)
	}

	if cfg.Spotify.ClientID == "" || cfg.Spotify.ClientSecret == "" {
		return fmt.Errorf("client id and secret are required")
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	logger := setupLogger(logFile, logLevel)
	flow, st, err := openFlow(cfg, logger)
	if err != nil {
		return err
	}

	authURL, err := flow.BeginAuthorization(ctx)
	// Closed before waiting so the daemon can write the tokens
	_ = st.Close()
	if err != nil && authURL == "" {
		return fmt.Errorf("failed to start authorization: %w", err)
	}

	fmt.Println("\nIf your browser did not open, visit this URL to authorize desky:")
	fmt.Printf("\n  %s\n\n", authURL)
	fmt.Println("Paste the redirect URL here, or press Enter once the browser has returned to desky:")
	pasted, _ := reader.ReadString('\n')
	pasted = strings.TrimSpace(pasted)

	if pasted != "" {
		if err := deliverRedirect(ctx, cfg, pasted, logger); err != nil {
			return err
		}
	} else if err := waitForLogin(ctx, cfg, logger, 30*time.Second); err != nil {
		return err
	}

	fmt.Printf("\n✓ Authorization successful!\n")
	fmt.Printf("✓ Credentials saved to %s\n", cfg.DatabasePath())
	fmt.Println("\nYou can now use 'desky run' or 'desky tui' to start desky.")

	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(logFile, logLevel)

	// A running daemon drops its session before the tokens disappear
	if cfg.Server.Addr != "" {
		if err := server.NewClient(cfg.Server.Addr).Disconnect(ctx); err != nil {
			logger.Debug().Err(err).Msg("Daemon not reachable")
		}
	}

	flow, st, err := openFlow(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if err := flow.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("✓ Logged out of Spotify")
	return nil
}

// openFlow opens the token database and an authorization flow on it
func openFlow(cfg *config.Config, logger zerolog.Logger) (*auth.Flow, *store.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	flow, err := auth.NewFlow(authConfig(cfg), st, logger)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return flow, st, nil
}

// deliverRedirect hands the redirect to a running daemon so it connects
// straight away, and falls back to exchanging the code in this process
func deliverRedirect(ctx context.Context, cfg *config.Config, rawURL string, logger zerolog.Logger) error {
	if cfg.Server.Addr != "" {
		client := server.NewClient(cfg.Server.Addr)
		if _, err := client.Session(ctx); err == nil {
			if err := client.Redirect(ctx, rawURL); err != nil {
				return fmt.Errorf("authorization failed: %w", err)
			}
			return nil
		}
		logger.Debug().Msg("Daemon not reachable, handling redirect locally")
	}

	flow, st, err := openFlow(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if err := flow.HandleRedirect(ctx, rawURL); err != nil {
		if errors.Is(err, auth.ErrSchemeMismatch) {
			return fmt.Errorf("not a %s redirect: %s", cfg.Spotify.RedirectURI, rawURL)
		}
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return fmt.Errorf("authorization failed: %s", appErr.Message)
		}
		return fmt.Errorf("authorization failed: %w", err)
	}
	return nil
}

// waitForLogin polls the token database until the scheme handler has
// stored credentials or the timeout passes
func waitForLogin(ctx context.Context, cfg *config.Config, logger zerolog.Logger, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		ok, err := checkAuthenticated(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for authorization; run 'desky callback <url>' with the redirect URL")
		case <-ticker.C:
		}
	}
}

func checkAuthenticated(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (bool, error) {
	flow, st, err := openFlow(cfg, logger)
	if err != nil {
		return false, err
	}
	defer func() { _ = st.Close() }()
	return flow.Authenticated(ctx)
}
