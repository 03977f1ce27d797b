// Package main runs the route proxy API server.
//
// The server rewrites JS, CSS, HTML and web app manifests so that every URL
// they reference points through the proxy's route space, and maps addresses
// to routes and back. It never fetches anything itself.
//
// Configuration:
//   - Defaults
//   - A yaml, toml or json file named by -config or ROUTEPROXY_CONFIG
//   - Environment variables (PORT, ROUTE_CODEC, ROUTE_KEY, LOG_LEVEL, ...)
//   - CLI flags
//
// Usage:
//
//	# Production mode
//	ROUTE_CODEC=xor ROUTE_KEY=2a3 ./server -port 8000
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
