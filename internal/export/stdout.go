package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// StdoutWriter prints artifacts, each preceded by a header line with its name.
type StdoutWriter struct {
	out    io.Writer
	logger *slog.Logger
}

// NewStdoutWriter returns a new StdoutWriter
func NewStdoutWriter(wc *WriterConfig) *StdoutWriter {
	return &StdoutWriter{
		out:    os.Stdout,
		logger: slog.With(slog.String("writer", string(STDOUT_WRITER_TYPE))),
	}
}

func (w *StdoutWriter) Write(_ context.Context, a Artifact) error {
	if _, err := fmt.Fprintf(w.out, "=== %s ===\n%s\n", a.Name, a.Content); err != nil {
		return fmt.Errorf("failed to print %s: %w", a.Name, err)
	}
	return nil
}
