package cmd

import (
	"github.com/spf13/cobra"
)

// tuiCmd represents the tui command
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Run the daemon with the terminal interface",
	Long: `Run the desky daemon with the tabbed terminal interface.

This is the same as 'desky run --tui'.

Tabs:
  1  Now Playing   track, artist, album, artwork and progress
  2  Clock         time and date
  3  Weather       current conditions for the configured location

Keys: c connect, d disconnect, r refresh, space play/pause, n next,
p previous, x dismiss error, Ctrl-Z suspend, q quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return startDaemon(cmd.Context(), cfg, true)
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
