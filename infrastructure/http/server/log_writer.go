package server

import (
	"log/slog"
	"strings"
)

// logWriter redirects the net/http error log and the panic reports of the
// recovery middleware to the relay's slog.Logger.
type logWriter struct {
	logger *slog.Logger
}

// Write implements io.Writer for http.Server.ErrorLog.
func (w logWriter) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.logger.Warn(strings.TrimRight(string(p), "\n"), "component", "http")
	return len(p), nil
}

// Println implements handlers.RecoveryHandlerLogger.
func (w logWriter) Println(v ...any) {
	w.logger.Error("Recovered from handler panic", "panic", v)
}
