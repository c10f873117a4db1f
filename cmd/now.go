/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/jfmyers9/desky/internal/config"
	"github.com/jfmyers9/desky/internal/daemon"
	"github.com/jfmyers9/desky/internal/server"
)

// nowCmd represents the now command
var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Display the track currently playing on Spotify",
	Long: `Display the track the desky daemon is currently publishing.

The running daemon is asked first; when it is not reachable the last
snapshot in now.json is used, so this is cheap enough for a status bar.

The output format can be customized in ~/.config/desky/config.yaml
using a Go template. Available fields: .Title, .Artist, .Album, .Position, .Duration

Exit codes:
  0 - Track is currently playing
  1 - No track playing, paused, or daemon not running`,
	RunE: runNow,
}

func init() {
	rootCmd.AddCommand(nowCmd)

	// Add format flag to override config
	nowCmd.Flags().StringP("format", "f", "", "Output format template (overrides config)")
	// Add width flag to set fixed output width
	nowCmd.Flags().IntP("width", "w", 0, "Fixed output width (0=disabled, overrides config)")
	// Add marquee flag to enable scrolling
	nowCmd.Flags().Bool("marquee", false, "Enable marquee scrolling for long text (overrides config)")
}

// nowTrack is the data available to the output template
type nowTrack struct {
	Title    string
	Artist   string
	Album    string
	Position string
	Duration string
}

func newNowTrack(t *server.TrackResponse) nowTrack {
	return nowTrack{
		Title:    t.Title,
		Artist:   t.Artist,
		Album:    t.Album,
		Position: formatMillis(t.PositionMs),
		Duration: formatMillis(t.DurationMs),
	}
}

func runNow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Check for format flag override
	formatFlag, _ := cmd.Flags().GetString("format")
	if formatFlag != "" {
		cfg.OutputFormat = formatFlag
	}

	track, err := currentTrack(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to get current track: %w", err)
	}

	// If not playing, exit with code 1
	if track == nil || !track.IsPlaying {
		os.Exit(1)
		return nil
	}

	// Format and print output
	output, err := formatTrack(newNowTrack(track), cfg.OutputFormat)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	// Apply width padding/marquee if requested
	width, _ := cmd.Flags().GetInt("width")
	if width == 0 {
		width = cfg.OutputWidth
	}

	marquee, _ := cmd.Flags().GetBool("marquee")
	if !marquee && !cmd.Flags().Changed("marquee") {
		// Flag not set, use config default
		marquee = cfg.MarqueeEnabled
	}

	if width > 0 {
		if marquee {
			output = marqueeText(output, width, cfg.MarqueeSpeed, cfg.MarqueeSeparator, time.Now())
		} else {
			output = padToWidth(output, width)
		}
	}

	fmt.Println(output)
	return nil
}

// currentTrack asks the daemon, then falls back to the snapshot file.
// A nil track means nothing is playing.
func currentTrack(ctx context.Context, cfg *config.Config) (*server.TrackResponse, error) {
	if cfg.Server.Addr != "" {
		client := server.NewClient(cfg.Server.Addr)
		track, err := client.Track(ctx)
		if err == nil {
			return track, nil
		}
		if errors.Is(err, server.ErrNoTrack) {
			return nil, nil
		}
	}

	snap, err := daemon.ReadSnapshot(filepath.Join(cfg.DataDir, "now.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snap.Track, nil
}

// formatTrack applies the template to the track data
func formatTrack(track nowTrack, templateStr string) (string, error) {
	tmpl, err := template.New("output").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, track); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	return buf.String(), nil
}

// padToWidth pads or truncates text to exactly width display columns.
// Truncated text ends in "...". A width <= 0 leaves text unchanged.
func padToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	const ellipsis = "..."
	if runewidth.StringWidth(text) > width {
		if width <= len(ellipsis) {
			return ellipsis[:width]
		}
		text = runewidth.Truncate(text, width-len(ellipsis), "") + ellipsis
	}
	return fillTo(text, width)
}

// fillTo right-pads text with spaces up to width display columns
func fillTo(text string, width int) string {
	if w := runewidth.StringWidth(text); w < width {
		return text + strings.Repeat(" ", width-w)
	}
	return text
}

// extractWindow returns width display columns of text starting at column
// start. A wide rune straddling either edge is dropped and the gap padded.
func extractWindow(text string, start, width int) string {
	if width <= 0 {
		return ""
	}

	var b strings.Builder
	col, used := 0, 0
	for _, r := range text {
		rw := runewidth.RuneWidth(r)
		if col < start {
			col += rw
			continue
		}
		if used+rw > width {
			break
		}
		b.WriteRune(r)
		used += rw
	}
	return fillTo(b.String(), width)
}

// marqueeText scrolls text that does not fit in width.
//
// The text is looped as "text + separator + text" and a window of width
// columns is cut at offset (unix seconds * speed) modulo the loop length,
// so each call is stateless and the same instant always renders the same
// frame. Status bars such as tmux redraw every status-interval seconds,
// which gives a stepped scroll of speed*interval characters per redraw.
// Text that already fits is padded instead.
func marqueeText(text string, width, speed int, separator string, now time.Time) string {
	if width <= 0 {
		return text
	}
	if runewidth.StringWidth(text) <= width {
		return padToWidth(text, width)
	}

	loop := []rune(text + separator)
	offset := int(now.Unix()*int64(speed)) % len(loop)
	if offset < 0 {
		offset += len(loop)
	}

	// Rotate the loop so the window never runs off the end
	rotated := string(loop[offset:]) + string(loop[:offset]) + text
	return extractWindow(rotated, 0, width)
}
