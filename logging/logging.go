// Package logging constructs the process-wide hclog.Logger and the naming
// convention components use to derive their own sub-logger, following the
// teacher's use of hclog with key/value pairs on every call site.
package logging

import (
	"os"

	"github.com/hashicorp/go-hclog"
)

// New builds the root logger for a validator node named name, at the given
// level ("trace", "debug", "info", "warn", "error").
func New(name, level string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(level),
		Output:     os.Stderr,
		JSONFormat: false,
	})
}

// Component derives a named sub-logger, the way the teacher tags every log
// line with the node's role.
func Component(root hclog.Logger, name string) hclog.Logger {
	return root.Named(name)
}
