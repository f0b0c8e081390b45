package status

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/gsbridge/pkg/config"
)

func TestNewStatusCommand(t *testing.T) {
	cmd := NewStatusCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "status", cmd.Use)
	assert.Equal(t, []string{"s"}, cmd.Aliases)
	assert.NotNil(t, cmd.RunE)
	assert.False(t, cmd.HasFlags())
}

func TestPrintStatus(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Channels.Telegram.Enabled = true

	var buf bytes.Buffer
	printStatus(&buf, filepath.Join(t.TempDir(), "missing.json"), cfg)
	out := buf.String()

	assert.Contains(t, out, "✗ (using defaults)")
	assert.Contains(t, out, "WebSocket: ws://localhost:8765/ws/koishi")
	assert.Contains(t, out, "Web console: http://localhost:8765/genshinuid")
	assert.Contains(t, out, "Reconnect interval: 5s")
	assert.Contains(t, out, "img_type: img")
	assert.Contains(t, out, "Telegram: ✓")
	assert.Contains(t, out, "Discord: not enabled")
}
