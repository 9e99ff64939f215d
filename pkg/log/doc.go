// Package log provides the logging abstraction used by rtcshare components.
//
// Components accept a Logger and never print on their own. The zerolog
// adapter is what the rtcshare command uses; embedders that do not care
// about output get the no-op logger by default.
//
// # Usage
//
//	logger := log.NewZerologAdapter()
//	relayLog := log.With(logger, log.String("component", "relay"))
//	relayLog.Info("connected", log.String("url", u))
//
// # Custom Loggers
//
// Implement Logger to route rtcshare output into an existing logging
// setup:
//
//	type MyLogger struct { ... }
//
//	func (l *MyLogger) Debug(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Info(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Warn(msg string, fields ...log.Field) { ... }
//	func (l *MyLogger) Error(msg string, fields ...log.Field) { ... }
//
// # Version
//
// Current version: 1.1.0
// Minimum compatible version: 1.0.0
package log
