// Package logging provides structured logging using uber/zap.
//
// Two modes are supported: JSON output for production and colored console
// output for development. Request handlers derive a per-request logger with
// ForRequest; subsystems such as the rewrite engine take a named child from
// Component.
//
//	logger := logging.NewDefault()
//	logger.Info("server starting", zap.String("port", "8000"))
//	engine := rewrite.New(rewrite.WithLogger(logger.Component("rewrite")))
package logging
