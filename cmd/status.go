package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/desky/internal/daemon"
	"github.com/jfmyers9/desky/internal/server"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the Spotify session and current track",
	Long: `Show the state of the Spotify session and the current track.

The running daemon is asked first. When it is not reachable the last
snapshot written to now.json is shown instead.`,
	RunE: runStatus,
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Ask the daemon to connect to Spotify",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := daemonClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Connect(ctx); err != nil {
			return err
		}
		fmt.Println("Connecting...")
		return nil
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Ask the daemon to close the Spotify session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := daemonClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			return err
		}
		fmt.Println("Disconnected")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
}

func daemonClient() (*server.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Server.Addr == "" {
		return nil, fmt.Errorf("the local API is disabled (server.addr is empty)")
	}
	return server.NewClient(cfg.Server.Addr), nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Server.Addr != "" {
		client := server.NewClient(cfg.Server.Addr)
		if sess, err := client.Session(ctx); err == nil {
			track, err := client.Track(ctx)
			if err != nil && !errors.Is(err, server.ErrNoTrack) {
				return err
			}
			printStatus("daemon", sess.State, sess.Message, track)
			return nil
		}
	}

	snap, err := daemon.ReadSnapshot(filepath.Join(cfg.DataDir, "now.json"))
	if err != nil {
		return fmt.Errorf("daemon not running and no snapshot available: %w", err)
	}
	printStatus("snapshot from "+snap.UpdatedAt.Local().Format(time.Kitchen), snap.Session, snap.Message, snap.Track)
	return nil
}

func printStatus(source, state, message string, track *server.TrackResponse) {
	fmt.Printf("Session: %s", state)
	if message != "" {
		fmt.Printf(" (%s)", message)
	}
	fmt.Printf("  [%s]\n", source)

	if track == nil {
		fmt.Println("Track:   nothing playing")
		return
	}
	icon := "▶"
	if !track.IsPlaying {
		icon = "⏸"
	}
	fmt.Printf("Track:   %s %s - %s\n", icon, track.Artist, track.Title)
	if track.Album != "" {
		fmt.Printf("Album:   %s\n", track.Album)
	}
	fmt.Printf("Time:    %s / %s\n",
		formatMillis(track.PositionMs), formatMillis(track.DurationMs))
}

// formatMillis formats milliseconds as M:SS
func formatMillis(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
