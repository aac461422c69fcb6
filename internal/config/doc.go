// Package config loads the motionwatch configuration from layered sources
// (built in defaults, a YAML file, the saved runtime settings and
// MOTIONWATCH_ environment variables), validates it, and holds the runtime
// settings that the processing loop reads once per frame.
package config
