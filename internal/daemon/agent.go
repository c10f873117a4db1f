package daemon

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// AgentLabel names the background agent on every platform
const AgentLabel = "com.desky.daemon"

// URLScheme is the scheme the authorization redirect is delivered on
const URLScheme = "desky"

const plistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.BinaryPath}}</string>
		<string>run</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardOutPath</key>
	<string>{{.LogPath}}/desky.log</string>
	<key>StandardErrorPath</key>
	<string>{{.LogPath}}/desky.err</string>
	<key>WorkingDirectory</key>
	<string>{{.WorkingDirectory}}</string>
	<key>EnvironmentVariables</key>
	<dict>
		<key>PATH</key>
		<string>/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin</string>
	</dict>
</dict>
</plist>
`

const unitTemplate = `[Unit]
Description=desky playback session daemon
After=network-online.target

[Service]
ExecStart={{.BinaryPath}} run --log-file {{.LogPath}}/desky.log
WorkingDirectory={{.WorkingDirectory}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

const desktopTemplate = `[Desktop Entry]
Type=Application
Name=desky
Comment=Handles desky:// authorization redirects
Exec={{.BinaryPath}} callback %u
Terminal=false
NoDisplay=true
MimeType=x-scheme-handler/{{.Scheme}};
`

// AgentConfig holds the values substituted into agent files
type AgentConfig struct {
	BinaryPath       string
	LogPath          string
	WorkingDirectory string
}

type agentData struct {
	AgentConfig
	Label  string
	Scheme string
}

// GeneratePlist renders the launchd agent for macOS
func GeneratePlist(config AgentConfig) (string, error) {
	return render("plist", plistTemplate, config)
}

// GenerateUnit renders the systemd user unit for Linux
func GenerateUnit(config AgentConfig) (string, error) {
	return render("unit", unitTemplate, config)
}

// GenerateDesktopEntry renders the XDG entry registering the URL handler
func GenerateDesktopEntry(config AgentConfig) (string, error) {
	return render("desktop", desktopTemplate, config)
}

func render(name, text string, config AgentConfig) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template: %w", name, err)
	}

	var buf bytes.Buffer
	data := agentData{AgentConfig: config, Label: AgentLabel, Scheme: URLScheme}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", name, err)
	}

	return buf.String(), nil
}

// GetPlistPath returns the path where the plist should be installed
func GetPlistPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, "Library", "LaunchAgents", AgentLabel+".plist"), nil
}

// GetUnitPath returns the path of the systemd user unit
func GetUnitPath() (string, error) {
	dir, err := xdgDir("XDG_CONFIG_HOME", ".config")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "systemd", "user", "desky.service"), nil
}

// GetDesktopEntryPath returns the path of the URL handler entry
func GetDesktopEntryPath() (string, error) {
	dir, err := xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "applications", "desky.desktop"), nil
}

// GetDefaultLogPath returns the default path for daemon logs
func GetDefaultLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ".local", "share", "desky", "logs"), nil
}

func xdgDir(env, fallback string) (string, error) {
	if dir := os.Getenv(env); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, fallback), nil
}
