package observability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionGauge(t *testing.T) {
	m := getMetrics()
	before := testutil.ToFloat64(m.activeSessions)

	SessionOpened()
	SessionOpened()
	SessionClosed()

	assert.Equal(t, before+1, testutil.ToFloat64(m.activeSessions))
	SessionClosed()
}

func TestCounters(t *testing.T) {
	m := getMetrics()

	RecordCommand("run_agent")
	RecordCommand("run_agent")
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.commandsTotal.WithLabelValues("run_agent")), 2.0)

	before := testutil.ToFloat64(m.tokensTotal.WithLabelValues("test-provider", "input"))
	RecordTokens("test-provider", 120, 30)
	assert.Equal(t, before+120, testutil.ToFloat64(m.tokensTotal.WithLabelValues("test-provider", "input")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.tokensTotal.WithLabelValues("test-provider", "output")), 30.0)

	RecordAgentTurn("test-provider", 20*time.Millisecond, false)
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.agentTurnTotal.WithLabelValues("test-provider", "error")), 1.0)

	storeErrs := testutil.ToFloat64(m.storeErrors.WithLabelValues("save_state"))
	RecordStoreOp("save_state", time.Millisecond, nil)
	RecordStoreOp("save_state", time.Millisecond, errors.New("disk full"))
	assert.Equal(t, storeErrs+1, testutil.ToFloat64(m.storeErrors.WithLabelValues("save_state")))
}

func TestMetricsHandler(t *testing.T) {
	RecordFrameRejected("rate_limited")
	RecordObserverRun("curator", "complete")

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `discussion_frames_rejected_total{reason="rate_limited"}`)
	assert.Contains(t, text, "active_discussions")
}

func TestAuditLoggerWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, InitAuditLogger(path))

	RecordSessionAudit(context.Background(), "session_start", "abc123", map[string]interface{}{"topic": "tariffs"})
	RecordUploadAudit(context.Background(), "127.0.0.1:5000", "notes.md", "success", 14)
	require.NoError(t, GetAuditLogger().Close())
	require.NoError(t, GetAuditLogger().Close(), "closing twice is harmless")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "session", first["type"])
	assert.Equal(t, "abc123", first["actor"])
	assert.Equal(t, "session_start", first["action"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "upload", second["type"])
	assert.Equal(t, "file_uploaded", second["action"])
	assert.Equal(t, "notes.md", second["metadata"].(map[string]interface{})["filename"])
}
