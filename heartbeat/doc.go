// Package heartbeat keeps workers visibly alive and tells the orchestrator
// which ones have gone quiet.
//
// # Overview
//
// Workers call the orchestrator's heartbeat operation on a fixed interval.
// Heartbeats only refresh a worker's last-seen time; they never extend task
// leases, so a worker that stops claiming loses its tasks even while its
// heartbeat is still arriving.
//
// # Sending
//
//	sender, _ := heartbeat.NewSender(heartbeat.SenderConfig{
//	    Beater:   client,
//	    WorkerID: workerID,
//	    Interval: 15 * time.Second,
//	})
//	sender.Start(ctx)
//	defer sender.Stop()
//
// # Monitoring
//
// Monitor classifies workers as alive or stale from their last heartbeat and
// reports each worker that goes stale once, until it beats again.
//
//	monitor := heartbeat.NewMonitor(time.Minute)
//	monitor.OnStale(func(id string) { logger.Warn("worker_stale", ...) })
//	monitor.Check(workers, time.Now())
//
// # Recommendations
//
//   - Set the timeout to 3-4x the heartbeat interval
//   - Handle OnStale callbacks idempotently
package heartbeat
