package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/jakopako/steprec/internal/log"
)

// The StaticFetcher fetches static page content. file:// urls are read from disk.
type StaticFetcher struct {
	*FetcherConfig
	client *http.Client
}

func NewStaticFetcher(fc *FetcherConfig) *StaticFetcher {
	return &StaticFetcher{
		FetcherConfig: fc,
		client:        &http.Client{},
	}
}

func (s *StaticFetcher) Fetch(ctx context.Context, urlStr string, opts FetchOpts) (string, error) {
	logger := log.LoggerFromContext(ctx)
	logger.Debug("fetching page", slog.String("fetcher", "static"), slog.String("url", urlStr), slog.String("user-agent", s.UserAgent))
	if len(opts.Steps) > 0 {
		logger.Warn(fmt.Sprintf("static fetcher cannot replay %d step(s), ignoring them", len(opts.Steps)))
	}

	if u, err := url.Parse(urlStr); err == nil && u.Scheme == "file" {
		b, err := os.ReadFile(u.Path)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", s.UserAgent)
	req.Header.Set("Accept", "*/*")
	res, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode != 200 {
		return "", fmt.Errorf("status code error: %d %s", res.StatusCode, res.Status)
	}
	bytes, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	resString := string(bytes)
	if log.Debug {
		writeHTMLToFile(ctx, urlStr, resString, s.DebugDir)
	}
	return resString, nil
}

func (s *StaticFetcher) Cancel() {}
