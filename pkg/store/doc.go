// Package store persists discussion sessions and per-turn usage receipts in SQLite.
//
// Invariants:
// - Only active sessions can be loaded or updated; ending a session clears its saved state.
// - Every receipt carries an estimated cost computed from the pricing table at write time.
// - Timestamps are stored as RFC 3339 UTC text so range filters compare lexically.
//
// Usage:
//
//	st, _ := store.Open(store.Config{Path: "roundtable.db"})
//	defer st.Close()
//	id, _ := st.CreateSession(ctx, store.NewSession{Topic: "AI regulation", AgentKeys: keys})
//	_ = st.SaveState(ctx, id, d.Export())
package store
