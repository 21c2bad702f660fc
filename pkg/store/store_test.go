package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/roundtable/pkg/discussion"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(Config{
		Path:   filepath.Join(t.TempDir(), "nested", "roundtable.db"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// setClock pins the store clock and returns a function that advances it
func setClock(st *Store, start time.Time) func(time.Duration) {
	now := start
	st.now = func() time.Time { return now }
	return func(d time.Duration) { now = now.Add(d) }
}

func sampleExport(t *testing.T) discussion.Export {
	t.Helper()
	d := discussion.New("AI regulation", 3, []string{"dr_nova", "biz"}, "")
	require.NoError(t, d.Append(discussion.Message{Speaker: "dr_nova", Text: "Evidence first."}))
	require.NoError(t, d.Append(discussion.Message{Speaker: "biz", Text: "Costs matter."}))
	return d.Export()
}

func TestOpen(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database path")
}

func TestSessionLifecycle(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	export := sampleExport(t)

	id, err := st.CreateSession(ctx, NewSession{
		Topic:       "AI regulation",
		AgentKeys:   []string{"dr_nova", "biz"},
		Provider:    "anthropic",
		Model:       "claude-sonnet-4-5-20250929",
		FileContext: "File: notes.txt",
		State:       export,
	})
	require.NoError(t, err)
	assert.Len(t, id, 21)

	sess, err := st.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "AI regulation", sess.Topic)
	assert.Equal(t, []string{"dr_nova", "biz"}, sess.AgentKeys)
	assert.Equal(t, StatusActive, sess.Status)
	assert.Equal(t, "File: notes.txt", sess.FileContext)
	require.NotNil(t, sess.State)
	assert.Len(t, sess.State.Messages, 2)
	assert.False(t, sess.CreatedAt.IsZero())

	d, err := discussion.FromExport(*sess.State)
	require.NoError(t, err)
	d.NextRound()
	require.NoError(t, d.Append(discussion.Message{Speaker: "dr_nova", Text: "Round two."}))
	require.NoError(t, st.SaveState(ctx, id, d.Export()))

	sess, err = st.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, sess.CurrentRound)
	assert.Len(t, sess.State.Messages, 3)

	require.NoError(t, st.EndSession(ctx, id))
	_, err = st.GetSession(ctx, id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, st.SaveState(ctx, id, d.Export()), ErrSessionNotFound)

	_, err = st.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLogReceiptAndUsageSummary(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	advance := setClock(st, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	first, err := st.CreateSession(ctx, NewSession{Topic: "first", Provider: "anthropic", Model: "claude-sonnet-4-5-20250929"})
	require.NoError(t, err)
	cost, err := st.LogReceipt(ctx, Receipt{SessionID: first, Persona: "dr_nova", Round: 1, InputTokens: 1000, OutputTokens: 500, Provider: "anthropic", Model: "claude-sonnet-4-5-20250929"})
	require.NoError(t, err)
	assert.InDelta(t, 0.0105, cost, 1e-9)

	advance(48 * time.Hour)
	second, err := st.CreateSession(ctx, NewSession{Topic: "second", Provider: "openai", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	_, err = st.LogReceipt(ctx, Receipt{SessionID: second, Persona: "biz", Round: 1, InputTokens: 2000, OutputTokens: 1000, Provider: "openai", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	_, err = st.LogReceipt(ctx, Receipt{SessionID: second, Persona: "creatia", Round: 1, InputTokens: 100, OutputTokens: 100, Provider: "openai", Model: "gpt-4o-mini"})
	require.NoError(t, err)

	summary, err := st.UsageSummary(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalSessions)
	assert.Equal(t, 3100, summary.TotalInputTokens)
	assert.Equal(t, 1600, summary.TotalOutputTokens)
	require.Len(t, summary.ByProvider, 2)
	assert.Equal(t, "anthropic", summary.ByProvider[0].Provider, "most expensive first")
	require.Len(t, summary.RecentSessions, 2)
	assert.Equal(t, "second", summary.RecentSessions[0].Topic)
	assert.Equal(t, 2100, summary.RecentSessions[0].InputTokens)

	summary, err = st.UsageSummary(ctx, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalSessions)
	require.Len(t, summary.RecentSessions, 1)
	assert.Equal(t, "second", summary.RecentSessions[0].Topic)

	summary, err = st.UsageSummary(ctx, time.Time{}, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, summary.TotalSessions)
	assert.Empty(t, summary.ByProvider)
}

func TestEstimateCost(t *testing.T) {
	assert.InDelta(t, 3.0, EstimateCost("claude-sonnet-4-5-20250929", 1_000_000, 0), 1e-9)
	assert.InDelta(t, 0.60, EstimateCost("gpt-4o-mini", 0, 1_000_000), 1e-9)
	assert.InDelta(t, EstimateCost("claude-sonnet-4-5-20250929", 10, 20), EstimateCost("unknown-model", 10, 20), 1e-12)
}

func TestRetentionSweep(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	advance := setClock(st, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	old, err := st.CreateSession(ctx, NewSession{Topic: "old"})
	require.NoError(t, err)
	_, err = st.LogReceipt(ctx, Receipt{SessionID: old, Persona: "biz", Round: 1})
	require.NoError(t, err)
	require.NoError(t, st.EndSession(ctx, old))

	active, err := st.CreateSession(ctx, NewSession{Topic: "still running"})
	require.NoError(t, err)

	advance(10 * 24 * time.Hour)
	recent, err := st.CreateSession(ctx, NewSession{Topic: "recently ended"})
	require.NoError(t, err)
	require.NoError(t, st.EndSession(ctx, recent))

	advance(25 * 24 * time.Hour)
	retention, err := NewRetention(st, RetentionConfig{Schedule: "0 3 * * *", Days: 30, Logger: zerolog.Nop()})
	require.NoError(t, err)

	purged, err := retention.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = st.GetSession(ctx, active)
	assert.NoError(t, err, "active sessions are never purged")

	summary, err := st.UsageSummary(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, summary.TotalInputTokens+summary.TotalSessions, "receipts of purged sessions go with them")
	assert.Len(t, summary.RecentSessions, 2)

	next := retention.Next(time.Date(2026, 5, 1, 4, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 5, 2, 3, 0, 0, 0, time.UTC), next)
}

func TestNewRetentionValidation(t *testing.T) {
	st := setupTestStore(t)

	_, err := NewRetention(nil, RetentionConfig{Schedule: "0 3 * * *", Days: 1})
	assert.Error(t, err)
	_, err = NewRetention(st, RetentionConfig{Schedule: "0 3 * * *"})
	assert.Error(t, err)
	_, err = NewRetention(st, RetentionConfig{Schedule: "nightly", Days: 1})
	assert.Error(t, err)
}

func TestRetentionRunStopsWithContext(t *testing.T) {
	st := setupTestStore(t)
	retention, err := NewRetention(st, RetentionConfig{Schedule: "* * * * *", Days: 1, Logger: zerolog.Nop()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- retention.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("retention scheduler did not stop")
	}
}
