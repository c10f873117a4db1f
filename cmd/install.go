package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/desky/internal/daemon"
)

// installCmd represents the install command
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the desky daemon as a login agent",
	Long: `Install the desky daemon so it runs automatically on login.

On macOS this will:
  - Generate a launchd plist for the desky daemon
  - Install it to ~/Library/LaunchAgents/
  - Load the agent with launchctl

On Linux this will:
  - Install a systemd user unit and enable it
  - Register desky as the handler for desky:// links, so authorization
    redirects reach 'desky callback'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get the path to the current executable
		binaryPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}

		// Resolve symlinks to get the actual binary path
		binaryPath, err = filepath.EvalSymlinks(binaryPath)
		if err != nil {
			return fmt.Errorf("failed to resolve executable path: %w", err)
		}

		logPath, err := daemon.GetDefaultLogPath()
		if err != nil {
			return fmt.Errorf("failed to get log path: %w", err)
		}
		if err := os.MkdirAll(logPath, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		agent := daemon.AgentConfig{
			BinaryPath:       binaryPath,
			LogPath:          logPath,
			WorkingDirectory: home,
		}

		switch runtime.GOOS {
		case "darwin":
			err = installLaunchAgent(agent)
		case "linux":
			err = installSystemdUnit(agent)
		default:
			err = fmt.Errorf("install is not supported on %s; run 'desky run' instead", runtime.GOOS)
		}
		if err != nil {
			return err
		}

		fmt.Printf("✓ Logs will be written to %s\n", logPath)
		fmt.Println("\nThe desky daemon is now running and will start automatically on login.")
		fmt.Println("\nTo uninstall, run:")
		fmt.Println("  desky uninstall")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}

func installLaunchAgent(agent daemon.AgentConfig) error {
	plistContent, err := daemon.GeneratePlist(agent)
	if err != nil {
		return fmt.Errorf("failed to generate plist: %w", err)
	}

	plistPath, err := daemon.GetPlistPath()
	if err != nil {
		return fmt.Errorf("failed to get plist path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(plistPath), 0755); err != nil {
		return fmt.Errorf("failed to create LaunchAgents directory: %w", err)
	}

	if _, err := os.Stat(plistPath); err == nil {
		fmt.Println("Daemon is already installed. Reloading...")
		if err := unloadLaunchAgent(); err != nil {
			fmt.Printf("Warning: failed to unload existing daemon: %v\n", err)
		}
	}

	if err := os.WriteFile(plistPath, []byte(plistContent), 0644); err != nil {
		return fmt.Errorf("failed to write plist file: %w", err)
	}
	fmt.Printf("✓ Installed plist to %s\n", plistPath)

	if out, err := exec.Command("launchctl", "bootstrap", launchDomain(), plistPath).CombinedOutput(); err != nil {
		return fmt.Errorf("launchctl bootstrap failed: %s", strings.TrimSpace(string(out)))
	}
	fmt.Println("✓ Daemon loaded and started successfully")
	fmt.Println("\nAuthorization redirects cannot be routed to a command line tool on")
	fmt.Println("macOS; paste the desky:// URL into 'desky login' when asked.")
	return nil
}

func installSystemdUnit(agent daemon.AgentConfig) error {
	unitContent, err := daemon.GenerateUnit(agent)
	if err != nil {
		return fmt.Errorf("failed to generate unit: %w", err)
	}
	unitPath, err := daemon.GetUnitPath()
	if err != nil {
		return fmt.Errorf("failed to get unit path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(unitPath), 0755); err != nil {
		return fmt.Errorf("failed to create unit directory: %w", err)
	}
	if err := os.WriteFile(unitPath, []byte(unitContent), 0644); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}
	fmt.Printf("✓ Installed unit to %s\n", unitPath)

	entryContent, err := daemon.GenerateDesktopEntry(agent)
	if err != nil {
		return fmt.Errorf("failed to generate desktop entry: %w", err)
	}
	entryPath, err := daemon.GetDesktopEntryPath()
	if err != nil {
		return fmt.Errorf("failed to get desktop entry path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(entryPath), 0755); err != nil {
		return fmt.Errorf("failed to create applications directory: %w", err)
	}
	if err := os.WriteFile(entryPath, []byte(entryContent), 0644); err != nil {
		return fmt.Errorf("failed to write desktop entry: %w", err)
	}
	fmt.Printf("✓ Installed URL handler to %s\n", entryPath)

	// Registering the handler is best effort on desktops without xdg-utils
	if out, err := exec.Command("xdg-mime", "default", filepath.Base(entryPath), "x-scheme-handler/"+daemon.URLScheme).CombinedOutput(); err != nil {
		fmt.Printf("Warning: failed to register %s:// handler: %s\n", daemon.URLScheme, strings.TrimSpace(string(out)))
	}

	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	if err := systemctl("enable", "--now", "desky.service"); err != nil {
		return err
	}
	fmt.Println("✓ Daemon enabled and started successfully")
	return nil
}

// launchDomain returns the launchctl domain of the current user
func launchDomain() string {
	return fmt.Sprintf("gui/%d", os.Getuid())
}

// unloadLaunchAgent unloads the daemon using launchctl
func unloadLaunchAgent() error {
	service := launchDomain() + "/" + daemon.AgentLabel
	if out, err := exec.Command("launchctl", "bootout", service).CombinedOutput(); err != nil {
		// Bootout fails when the agent is not loaded, which is fine
		if msg := strings.TrimSpace(string(out)); msg != "" {
			fmt.Printf("Warning: %s\n", msg)
		}
	}
	return nil
}

func systemctl(args ...string) error {
	args = append([]string{"--user"}, args...)
	if out, err := exec.Command("systemctl", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("systemctl %s failed: %s", strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return nil
}
