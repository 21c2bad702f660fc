// Package engine drives one discussion session per client connection.
//
// A session moves AwaitingInit → Ready ⇄ RunningAgent → Ended. A reader
// goroutine decodes and validates frames into a buffered channel; the Run
// goroutine is the only consumer and the only writer of the discussion.
//
// Invariants:
// - At most one persona turn is in flight per session.
// - Every command except ping, get_export and end is answered with a ready event.
// - While a turn streams, queued user messages are recorded and echoed between
//   fragments; other commands are dropped.
// - Observer failures never fail a turn: the curator defaults to complete and
//   a malformed sentiment payload produces no event.
// - Store and transport errors are logged and never end a session.
//
// Usage:
//
//	eng, _ := engine.New(engine.Config{
//		Registry:     agent.NewRegistry(cfg.Personas),
//		Runner:       runner,
//		Store:        st,
//		CuratorKey:   cfg.Discussion.CuratorKey,
//		SentimentKey: cfg.Discussion.SentimentKey,
//	})
//	err := eng.Run(ctx, conn)
package engine
