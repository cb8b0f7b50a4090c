package deposit

// Logger receives the service's structured log records. args alternate
// keys and values as with log/slog. A Logger also satisfies zenodo.Logger,
// so request logging lands in the same place.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger drops every record.
type NopLogger struct{}

// NewNopLogger returns a Logger for tests that do not inspect logs.
func NewNopLogger() Logger { return NopLogger{} }

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
