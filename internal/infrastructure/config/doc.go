// Package config provides 12-factor configuration for the route proxy.
//
// Values come from three layers, later ones winning: built-in defaults, an
// optional YAML, TOML or JSON file named by ROUTEPROXY_CONFIG, and
// environment variables.
//
// Configuration Sections:
//   - Server: listen address and request body limit
//   - Route: route base path, codec kind, codec key and JS hook name
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting
//   - CORS: allowed origins
//
// Environment Variables:
//   - PORT, HOST, MAX_BODY_BYTES
//   - ROUTE_BASE, ROUTE_CODEC, ROUTE_KEY, JS_HOOK
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - CORS_ORIGINS (comma separated)
package config
