package proto

import (
	"log/slog"

	"github.com/NikoMalik/reoproto/internal/rlog"
)

// config holds the optional knobs a builder may set via Option (spec.md
// §9: the runtime carries no built-in policy beyond what Build is told).
type config struct {
	logFirings bool
}

func defaultConfig() config {
	return config{}
}

// Option configures a ProtoAll at build time.
type Option func(*config)

// WithLogger replaces the package-wide structured logger the coordinator
// writes its debug lines (rule matches and firings) to. It affects every
// ProtoAll in the process, matching internal/rlog's single package-level
// logger (SPEC_FULL.md §2 ambient logging).
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { rlog.SetDefault(l) }
}

// WithFiringLogs turns on per-firing debug logging (rule id, action count).
// Off by default since a busy protocol instance fires at a high rate.
func WithFiringLogs(on bool) Option {
	return func(c *config) { c.logFirings = on }
}
