// Package logger wraps zap with a process wide sugared logger, level
// parsing and context scoped helpers so the processing loop, the web server
// and the command line all log the same way.
package logger
