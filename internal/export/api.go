package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// APIWriter posts every artifact as JSON to an HTTP endpoint, e.g. a test
// management service that collects generated suites.
type APIWriter struct {
	*WriterConfig
	client *http.Client
	logger *slog.Logger
}

type apiArtifact struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// NewAPIWriter returns a new APIWriter
func NewAPIWriter(wc *WriterConfig) (*APIWriter, error) {
	if wc.URI == "" {
		return nil, errors.New("uri needs to be specified for the APIWriter")
	}
	return &APIWriter{
		WriterConfig: wc,
		client:       &http.Client{Timeout: time.Second * 60},
		logger:       slog.With(slog.String("writer", string(API_WRITER_TYPE))),
	}, nil
}

func (w *APIWriter) Write(ctx context.Context, a Artifact) error {
	body, err := json.Marshal(apiArtifact{Name: a.Name, Content: string(a.Content)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URI, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error while creating post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.User != "" {
		req.SetBasicAuth(w.User, w.Password)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Debug(fmt.Sprintf("post request body %s", body))
		return fmt.Errorf("error while sending post request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("error while reading post request response: %w", err)
		}
		return fmt.Errorf("error while posting %s. Status Code: %d Response: %s", a.Name, resp.StatusCode, respBody)
	}
	w.logger.Info(fmt.Sprintf("posted %s to %s", a.Name, w.URI))
	return nil
}
