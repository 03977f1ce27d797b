// Package middleware provides the HTTP middleware stack of the route proxy.
//
// Middleware stack includes:
//   - Recovery: panic recovery logged through zap
//   - RequestID: request ids, per-request loggers and the access log
//   - CORS: cross-origin access with configurable origins
//   - RateLimit: per-IP token buckets with idle client eviction
//
// Example Usage:
//
//	router.Use(middleware.Recovery(logger))
//	router.Use(middleware.RequestID(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
