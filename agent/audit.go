package agent

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

// NewAuditLogger builds the per-session logger: human-readable text on w
// (typically stderr) plus, when logDir is set, a JSON lines audit file under
// logDir/<sessionID>/. The audit file records at debug level regardless of
// the console level. The returned closer releases the audit file.
func NewAuditLogger(w io.Writer, logDir, sessionID string, level slog.Level) (*slog.Logger, io.Closer, error) {
	handlers := []slog.Handler{
		slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}),
	}

	var closer io.Closer = nopCloser{}
	if logDir != "" {
		dir := filepath.Join(logDir, sessionID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create audit directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(dir, "audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open audit log: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
		closer = f
	}

	logger := slog.New(slogmulti.Fanout(handlers...)).With("session_id", sessionID)
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
