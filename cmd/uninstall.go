package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/desky/internal/daemon"
)

// uninstallCmd represents the uninstall command
var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the desky login agent",
	Long: `Stop the desky daemon and remove the files written by 'desky install'.

After uninstalling, the daemon will no longer run automatically on login.
Credentials and configuration are kept; use 'desky logout' to remove them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var err error
		switch runtime.GOOS {
		case "darwin":
			err = uninstallLaunchAgent()
		case "linux":
			err = uninstallSystemdUnit()
		default:
			return fmt.Errorf("uninstall is not supported on %s", runtime.GOOS)
		}
		if err != nil {
			return err
		}

		fmt.Println("\nThe desky daemon has been uninstalled successfully.")
		fmt.Println("\nTo reinstall, run:")
		fmt.Println("  desky install")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}

func uninstallLaunchAgent() error {
	plistPath, err := daemon.GetPlistPath()
	if err != nil {
		return fmt.Errorf("failed to get plist path: %w", err)
	}
	if _, err := os.Stat(plistPath); os.IsNotExist(err) {
		fmt.Println("Daemon is not installed (plist not found)")
		return nil
	}

	fmt.Println("Stopping daemon...")
	_ = unloadLaunchAgent()

	if err := os.Remove(plistPath); err != nil {
		return fmt.Errorf("failed to remove plist file: %w", err)
	}
	fmt.Printf("✓ Removed plist from %s\n", plistPath)
	return nil
}

func uninstallSystemdUnit() error {
	unitPath, err := daemon.GetUnitPath()
	if err != nil {
		return fmt.Errorf("failed to get unit path: %w", err)
	}
	entryPath, err := daemon.GetDesktopEntryPath()
	if err != nil {
		return fmt.Errorf("failed to get desktop entry path: %w", err)
	}

	if _, err := os.Stat(unitPath); os.IsNotExist(err) {
		fmt.Println("Daemon is not installed (unit not found)")
	} else {
		fmt.Println("Stopping daemon...")
		if err := systemctl("disable", "--now", "desky.service"); err != nil {
			fmt.Printf("Warning: %v\n", err)
		}
		if err := os.Remove(unitPath); err != nil {
			return fmt.Errorf("failed to remove unit file: %w", err)
		}
		_ = systemctl("daemon-reload")
		fmt.Printf("✓ Removed unit from %s\n", unitPath)
	}

	if err := os.Remove(entryPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove desktop entry: %w", err)
	}
	fmt.Printf("✓ Removed URL handler from %s\n", entryPath)
	return nil
}
