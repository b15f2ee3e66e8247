package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

const agentLabel = "dev.collection-runner.agent"

// autostart registers the agent binary to start on login for one OS.
type autostart struct {
	install   func(exe, port string) (string, error)
	uninstall func() error
}

var autostarts = map[string]autostart{
	"darwin":  {install: installLaunchAgent, uninstall: uninstallLaunchAgent},
	"linux":   {install: installDesktopEntry, uninstall: uninstallDesktopEntry},
	"windows": {install: installRunKey, uninstall: uninstallRunKey},
}

func installAgent(out io.Writer, port string) error {
	a, ok := autostarts[runtime.GOOS]
	if !ok {
		return fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	if exe, err = filepath.EvalSymlinks(exe); err != nil {
		return fmt.Errorf("failed to resolve symlinks: %w", err)
	}

	where, err := a.install(exe, port)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Agent installed for auto-start:", where)
	return nil
}

func uninstallAgent(out io.Writer) error {
	a, ok := autostarts[runtime.GOOS]
	if !ok {
		return fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
	if err := a.uninstall(); err != nil {
		return err
	}
	fmt.Fprintln(out, "Agent removed from auto-start")
	return nil
}

func launchAgentPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Library", "LaunchAgents", agentLabel+".plist"), nil
}

func launchAgentPlist(exe, port string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>%s</string>
    <key>ProgramArguments</key>
    <array>
        <string>%s</string>
        <string>--port</string>
        <string>%s</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardErrorPath</key>
    <string>/tmp/collection-runner-agent.log</string>
</dict>
</plist>
`, agentLabel, exe, port)
}

func installLaunchAgent(exe, port string) (string, error) {
	path, err := launchAgentPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create LaunchAgents directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(launchAgentPlist(exe, port)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write plist file: %w", err)
	}

	// Reload in case an older definition is already loaded.
	_ = exec.Command("launchctl", "unload", path).Run()
	if output, err := exec.Command("launchctl", "load", path).CombinedOutput(); err != nil {
		return "", fmt.Errorf("failed to load launch agent: %v (%s)", err, output)
	}
	return path, nil
}

func uninstallLaunchAgent() error {
	path, err := launchAgentPath()
	if err != nil {
		return err
	}
	_ = exec.Command("launchctl", "unload", path).Run()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove plist file: %w", err)
	}
	return nil
}

func desktopEntryPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "autostart", "collection-runner-agent.desktop"), nil
}

func desktopEntry(exe, port string) string {
	return fmt.Sprintf(`[Desktop Entry]
Type=Application
Name=Collection Runner Agent
Exec=%s --port %s
Hidden=false
NoDisplay=true
X-GNOME-Autostart-enabled=true
Comment=Sends collection-runner requests from this machine
`, exe, port)
}

func installDesktopEntry(exe, port string) (string, error) {
	path, err := desktopEntryPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create autostart directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(desktopEntry(exe, port)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write desktop entry: %w", err)
	}

	// Start now as well; login will start it from then on.
	_ = exec.Command(exe, "--port", port).Start()
	return path, nil
}

func uninstallDesktopEntry() error {
	path, err := desktopEntryPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove desktop entry: %w", err)
	}
	return nil
}

const runKey = `HKCU:\Software\Microsoft\Windows\CurrentVersion\Run`

func installRunKey(exe, port string) (string, error) {
	script := fmt.Sprintf(`Set-ItemProperty -Path '%s' -Name 'CollectionRunnerAgent' -Value '"%s" --port %s'`, runKey, exe, port)
	if output, err := exec.Command("powershell", "-Command", script).CombinedOutput(); err != nil {
		return "", fmt.Errorf("failed to add registry key: %v (%s)", err, output)
	}
	_ = exec.Command(exe, "--port", port).Start()
	return runKey, nil
}

func uninstallRunKey() error {
	script := fmt.Sprintf(`Remove-ItemProperty -Path '%s' -Name 'CollectionRunnerAgent' -ErrorAction SilentlyContinue`, runKey)
	if output, err := exec.Command("powershell", "-Command", script).CombinedOutput(); err != nil {
		return fmt.Errorf("failed to remove registry key: %v (%s)", err, output)
	}
	return nil
}
