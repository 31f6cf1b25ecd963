// Package state provides the key-value storage that orchestrator snapshots
// are written to.
//
// Every backend implements Store. Values are opaque bytes; the snapshot
// package decides what goes in them.
//
// # Backends
//
//   - memory: process-local map, for tests and throwaway runs
//   - file: one file per key in a directory, replaced atomically
//   - sqlite: a kv table in a SQLite database (pure Go driver)
//   - bolt: a bucket in a bbolt database file
//   - redis: plain keys under a prefix
//   - nats: a JetStream KV bucket
//
// # Usage
//
//	store, err := state.Open(state.Config{Driver: "file", Path: "."})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	store.Put("state.json", data)
//	data, err = store.Get("state.json")
package state
