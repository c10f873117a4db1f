package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/desky/internal/music"
)

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Resume playback in Spotify",
	Long:  `Resume playback on the active Spotify device.`,
	RunE: controlCommand("play", func(ctx context.Context, r *music.SpotifyRemote) error {
		return r.Play(ctx)
	}),
}

// pauseCmd represents the pause command
var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause playback in Spotify",
	Long:  `Pause playback on the active Spotify device.`,
	RunE: controlCommand("pause", func(ctx context.Context, r *music.SpotifyRemote) error {
		return r.Pause(ctx)
	}),
}

// playpauseCmd represents the playpause command
var playpauseCmd = &cobra.Command{
	Use:   "playpause",
	Short: "Toggle play/pause in Spotify",
	Long:  `Toggle between play and pause on the active Spotify device. If playing, pauses. If paused, resumes.`,
	RunE: controlCommand("playpause", func(ctx context.Context, r *music.SpotifyRemote) error {
		return r.PlayPause(ctx)
	}),
}

// nextCmd represents the next command
var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Skip to next track in Spotify",
	Long:  `Skip to the next track in the current Spotify queue.`,
	RunE: controlCommand("skip to next track", func(ctx context.Context, r *music.SpotifyRemote) error {
		return r.NextTrack(ctx)
	}),
}

// prevCmd represents the prev command
var prevCmd = &cobra.Command{
	Use:   "prev",
	Short: "Go to previous track in Spotify",
	Long:  `Return to the previous track in the current Spotify queue.`,
	RunE: controlCommand("go to previous track", func(ctx context.Context, r *music.SpotifyRemote) error {
		return r.PreviousTrack(ctx)
	}),
}

// shuffleCmd represents the shuffle command
var shuffleCmd = &cobra.Command{
	Use:   "shuffle on|off",
	Short: "Set shuffle mode in Spotify",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[0] {
		case "on":
			enabled = true
		case "off":
			enabled = false
		default:
			return fmt.Errorf("invalid shuffle argument: %s (must be 'on' or 'off')", args[0])
		}
		return controlCommand("set shuffle", func(ctx context.Context, r *music.SpotifyRemote) error {
			return r.SetShuffle(ctx, enabled)
		})(cmd, args)
	},
}

// volumeCmd represents the volume command
var volumeCmd = &cobra.Command{
	Use:   "volume 0-100",
	Short: "Set playback volume in Spotify",
	Long: `Set the volume of the active Spotify device.

Volume level must be between 0 (muted) and 100 (maximum).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid volume level: %s (must be a number 0-100)", args[0])
		}
		return controlCommand("set volume", func(ctx context.Context, r *music.SpotifyRemote) error {
			return r.SetVolume(ctx, level)
		})(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(playpauseCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(prevCmd)
	rootCmd.AddCommand(shuffleCmd)
	rootCmd.AddCommand(volumeCmd)
}

// controlCommand runs fn against a remote opened with the stored token
func controlCommand(name string, fn func(ctx context.Context, r *music.SpotifyRemote) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		remote, err := connectRemote(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = remote.Disconnect(context.Background()) }()

		if err := fn(ctx, remote); err != nil {
			return fmt.Errorf("failed to %s: %w", name, err)
		}
		return nil
	}
}

// connectRemote refreshes the stored token if needed and opens a remote
func connectRemote(ctx context.Context) (*music.SpotifyRemote, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := setupLogger(logFile, logLevel)

	flow, st, err := openFlow(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = st.Close() }()

	ok, err := flow.Authenticated(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("not logged in. Run 'desky login' first")
	}
	if _, err := flow.RefreshIfNeeded(ctx); err != nil {
		logger.Warn().Err(err).Msg("Token refresh failed, using stored token")
	}
	tok, err := st.Tokens(ctx)
	if err != nil {
		return nil, err
	}

	remote := music.NewSpotifyRemote(music.WithAPIURL(cfg.Spotify.APIURL))
	if err := remote.Connect(ctx, tok.AccessToken); err != nil {
		return nil, fmt.Errorf("failed to connect to Spotify: %w", err)
	}
	return remote, nil
}
