package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FileWriter writes every artifact to its own file in a directory.
type FileWriter struct {
	*WriterConfig
	logger *slog.Logger
}

// NewFileWriter returns a new FileWriter. The directory is created if needed.
func NewFileWriter(wc *WriterConfig) (*FileWriter, error) {
	if wc.Dir == "" {
		return nil, errors.New("dir needs to be specified for the FileWriter")
	}
	if err := os.MkdirAll(wc.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", wc.Dir, err)
	}
	return &FileWriter{
		WriterConfig: wc,
		logger:       slog.With(slog.String("writer", string(FILE_WRITER_TYPE))),
	}, nil
}

func (w *FileWriter) Write(ctx context.Context, a Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := filepath.Join(w.Dir, a.Name)
	if err := os.WriteFile(p, a.Content, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	w.logger.Info(fmt.Sprintf("wrote %s (%d bytes)", p, len(a.Content)))
	return nil
}
