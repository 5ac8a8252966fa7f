package export

import (
	"context"
	"fmt"
)

// Writer writes generated artifacts to a specific output.
type Writer interface {
	Write(ctx context.Context, a Artifact) error
}

// WriterConfig defines the parameters needed to create a writer.
type WriterConfig struct {
	Type     WriterType `yaml:"type" env:"STEPREC_EXPORT_WRITER" env-default:"file"`
	Dir      string     `yaml:"dir" env:"STEPREC_EXPORT_DIR" env-default:"export"`
	URI      string     `yaml:"uri"`
	User     string     `yaml:"user" env:"STEPREC_EXPORT_USER"`         // credentials can be passed via env vars
	Password string     `yaml:"password" env:"STEPREC_EXPORT_PASSWORD"` // credentials can be passed via env vars
}

// WriterType encapsulates the type of a writer.
// See below constants for possible types
type WriterType string

const (
	STDOUT_WRITER_TYPE WriterType = "stdout"
	FILE_WRITER_TYPE   WriterType = "file"
	API_WRITER_TYPE    WriterType = "api"
)

// NewWriter returns a new writer depending on the writer type
func NewWriter(wc *WriterConfig) (Writer, error) {
	switch wc.Type {
	case STDOUT_WRITER_TYPE:
		return NewStdoutWriter(wc), nil
	case FILE_WRITER_TYPE:
		return NewFileWriter(wc)
	case API_WRITER_TYPE:
		return NewAPIWriter(wc)
	default:
		return nil, fmt.Errorf("writer of type '%s' not implemented", wc.Type)
	}
}
