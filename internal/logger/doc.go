// Package logger wraps zap for every tripwire binary.
//
// It keeps one global sugared logger with a console encoder and an atomic
// level, and stores scoped loggers in a context.Context so that monitors,
// the supervisor and the executor log under their own names
// (for example "tripwire.monitor.heartbeat").
package logger
