// Package shutdown stops the orchestrator's components in a fixed order.
//
// # Overview
//
// Handlers are registered against a phase. Lower phases run first; handlers
// sharing a phase run concurrently. The orchestrator uses:
//
//   - PhaseHTTP: stop accepting requests and drain in-flight ones
//   - PhaseBackground: stop the report scheduler and event streams
//   - PhaseFlush: write a final snapshot
//   - PhaseClose: close the bus and the snapshot store
//   - PhaseTelemetry: flush and stop exporters
//
// # Usage
//
//	coord := shutdown.NewCoordinator(shutdown.DefaultConfig())
//	coord.RegisterFuncWithPhase("http", srv.Shutdown, shutdown.PhaseHTTP)
//	coord.RegisterFuncWithPhase("snapshot", svc.Flush, shutdown.PhaseFlush)
//	coord.HandleSignals()
//	<-coord.Done()
//
// The context passed to handlers is cancelled when the overall timeout
// expires. A phase that starts after the deadline is skipped and the
// shutdown reports ErrTimeout.
package shutdown
