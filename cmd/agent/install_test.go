package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAutostartDefinitions(t *testing.T) {
	plist := launchAgentPlist("/opt/agent", "6000")
	assert.Contains(t, plist, "<string>"+agentLabel+"</string>")
	assert.Contains(t, plist, "<string>/opt/agent</string>")
	assert.Contains(t, plist, "<string>6000</string>")

	entry := desktopEntry("/opt/agent", "6000")
	assert.Contains(t, entry, "Exec=/opt/agent --port 6000\n")

	for _, goos := range []string{"darwin", "linux", "windows"} {
		assert.Contains(t, autostarts, goos)
	}
}
