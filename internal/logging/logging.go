// Package logging provides the single hclog construction path used by every
// long-lived component in syrah.
package logging

import (
	"io"

	"github.com/hashicorp/go-hclog"
)

// CreateLogger builds a named hclog.Logger with the given level and output
// format. The server command builds its logger here, and the proxy,
// bridge, metrics and pprof components receive Named children of it, so
// log shape stays consistent. The ca, rules and version commands do not
// log through hclog.
func CreateLogger(output io.Writer, logLevel string, asJSON bool, name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Level:           hclog.LevelFromString(logLevel),
		Output:          output,
		JSONFormat:      asJSON,
		IncludeLocation: true,
	}).Named(name)
}
