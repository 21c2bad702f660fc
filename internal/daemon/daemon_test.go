package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/roundtable/internal/config"
	"github.com/harun/roundtable/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestDaemon creates a daemon bound to a random local port
func createTestDaemon(t *testing.T) (*Daemon, *logger.Logger) {
	t.Helper()
	tmpDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = tmpDir
	cfg.Storage.Path = filepath.Join(tmpDir, "roundtable.db")
	cfg.Logging.AuditFile = filepath.Join(tmpDir, "logs", "audit.log")
	cfg.Gateway.Port = 0
	cfg.AI.Profiles = []config.AIProfile{{ID: "anthropic", Provider: "anthropic", APIKey: "sk-ant-test-key"}}

	log, err := logger.New(logger.Config{
		Level:   "info",
		Console: false,
	})
	require.NoError(t, err)

	daemon, err := New(cfg, log)
	require.NoError(t, err)

	return daemon, log
}

func TestNew(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()
	defer daemon.closeCore()

	assert.NotNil(t, daemon.store)
	assert.NotNil(t, daemon.retention)
	assert.NotNil(t, daemon.engine)
	assert.NotNil(t, daemon.gatewayServer)
	assert.NotNil(t, daemon.lifecycle)
	assert.Len(t, daemon.personas.All(), len(config.DefaultPersonas()))
}

func TestNewRejectsBadRetentionSchedule(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Storage.RetentionSchedule = "not a schedule"

	log, err := logger.New(logger.Config{Level: "info"})
	require.NoError(t, err)
	defer log.Close()

	_, err = New(cfg, log)
	assert.Error(t, err)
}

func TestDaemonStartStop(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()

	status := daemon.Status()
	assert.False(t, status.Running)
	assert.Equal(t, time.Duration(0), status.Uptime)

	require.NoError(t, daemon.Start())
	assert.Error(t, daemon.Start(), "second start fails")

	status = daemon.Status()
	assert.True(t, status.Running)
	assert.NotEmpty(t, status.Addr)

	pidFile := PIDFilePath(daemon.GetConfig().DataDir)
	running, pid := IsRunning(pidFile)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	resp, err := http.Get("http://" + status.Addr + "/api/agents")
	require.NoError(t, err)
	var agents []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&agents))
	resp.Body.Close()
	assert.NotEmpty(t, agents)

	require.NoError(t, daemon.Stop())
	assert.False(t, daemon.Status().Running)
	assert.NoFileExists(t, pidFile)

	assert.Error(t, daemon.Stop(), "second stop fails")
}

func TestDaemonRunServesUntilCancelled(t *testing.T) {
	daemon, log := createTestDaemon(t)
	defer log.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- daemon.Run(ctx) }()

	require.Eventually(t, func() bool { return daemon.Status().Running }, 2*time.Second, 10*time.Millisecond)

	// an empty topic is rejected by the engine before any model call
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+daemon.Status().Addr+"/ws/discuss", nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"topic": ""}))

	var ev map[string]interface{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "error", ev["type"])
	conn.Close()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.False(t, daemon.Status().Running)
}
