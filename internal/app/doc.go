// Package app holds the relay's coordination logic: the local connection
// registry, the pub/sub fanout, the periodic heartbeat broadcast, fleet-wide
// graceful shutdown and counter reconciliation.
//
// It depends only on domain ports. Redis and WebSocket adapters are wired in
// by cmd/server.
package app
