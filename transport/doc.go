// Package transport pushes orchestrator events to websocket clients.
//
// EventStream is an http.Handler. Each connection gets its own bus
// subscription and receives every message on it as a text frame, with
// periodic pings to keep idle connections alive. The stream is one-way:
// anything the client sends is read and discarded, and a read error ends
// the connection.
//
//	mux.Handle("GET /events", transport.NewEventStream(b, transport.DefaultEventStreamConfig(), logger))
package transport
