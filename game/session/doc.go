// Package session keeps live Tank Tactics matches in memory and makes them
// durable.
//
// The session package implements:
//   - Thread-safe match storage and retrieval keyed by match id
//   - UUID generation for matches created without an id
//   - Lazy restore of matches from storage
//   - Idle eviction
//   - File and SQLite storage backends
//   - An asynchronous, retrying writer between matches and storage
//
// Core Types:
//
// Manager owns the in-memory sessions. Each session wraps one engine.Match,
// which serializes every action resolved against it.
//
// Writer implements engine.Sink. Matches hand it audit entries and snapshots
// while holding their own lock; Run writes them to a MatchPersistence in the
// background. Snapshots of a match coalesce to the newest, log entries keep
// commit order, and a write that keeps failing is logged and dropped.
//
// Storage:
//
// FilePersistence writes <id>.json snapshots and <id>.actions.jsonl logs.
// SQLitePersistence stores the same data in two tables and migrates its
// schema on open. Both tolerate replayed appends.
//
// Usage:
//
//	store, err := session.NewFilePersistence("matches")
//	writer := session.NewWriter(store, session.WithWriterLogger(logger))
//	go writer.Run(ctx)
//
//	manager := session.NewManager(
//		session.WithPersistence(store),
//		session.WithSink(writer),
//	)
//	sess, err := manager.Create("", rules)
package session
