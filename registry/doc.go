// Package registry keeps the identity records of the orchestrator: bots
// that receive pushed assignments, workers that pull work through claims,
// and the clients and projects tasks are produced for.
//
// Records are plain keyed inserts. Every registration gets a fresh opaque
// ID; nothing is ever deduplicated by name. Workers additionally carry a
// last-heartbeat timestamp, which is independent of any task lease.
//
// # Basic Usage
//
//	reg := registry.New()
//	w := reg.RegisterWorker("worker-1", []string{"general"})
//	reg.Heartbeat(w.ID)
//
//	// Discover workers by capability, most recently seen first.
//	workers := reg.FindByCapability("general")
//
// # Thread Safety
//
// Registry is not safe for concurrent use. It shares the owning service's
// lock with the task board.
package registry
