// Package journal persists motion runtime activity transitions.
//
// It subscribes to the event bus and appends one entry per idle/active
// transition, per detailed-state bit flip, and per committed plan. Entries
// go to a pluggable Store (JSONL file by default, SQLite behind the
// "sqlite" build tag) and to a bounded in-memory ring for cheap queries.
package journal
