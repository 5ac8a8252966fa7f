// Package fetch loads the html of pages and frames, either statically, by
// rendering them in chrome, or from a fixed set of mock pages.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"

	"github.com/jakopako/steprec/internal/log"
	"github.com/jakopako/steprec/internal/types"
	"github.com/jakopako/steprec/internal/utils"
)

const (
	TypeStatic  = "static"
	TypeDynamic = "dynamic"
	TypeMock    = "mock"
)

// A Fetcher allows to fetch the content of a web page
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts FetchOpts) (string, error)
	Cancel() // only needed for the dynamic fetcher
}

// FetchOpts modify a single fetch. Steps are replayed in the browser before
// the page content is read and are ignored by fetchers that cannot run them.
type FetchOpts struct {
	Steps []types.Step
}

// MockPage is a page served by the MockFetcher.
type MockPage struct {
	URL     string `yaml:"url"`
	Content string `yaml:"content"`
}

type FetcherConfig struct {
	Type           string     `yaml:"type" env:"STEPREC_FETCHER_TYPE" env-default:"static"`
	UserAgent      string     `yaml:"user_agent" env:"STEPREC_USER_AGENT" env-default:"steprec"`
	PageLoadWaitMS int        `yaml:"page_load_wait_ms" env-default:"2000"`
	StepDelayMS    int        `yaml:"step_delay_ms" env-default:"500"`
	DebugDir       string     `yaml:"debug_dir" env-default:"debug"`
	MockPages      []MockPage `yaml:"mock_pages"`
}

// NewFetcher returns the fetcher matching the configured type.
func NewFetcher(fc *FetcherConfig) (Fetcher, error) {
	switch fc.Type {
	case TypeStatic, "":
		return NewStaticFetcher(fc), nil
	case TypeDynamic:
		return NewDynamicFetcher(fc), nil
	case TypeMock:
		return NewMockFetcher(fc), nil
	default:
		return nil, fmt.Errorf("fetcher type %s not implemented", fc.Type)
	}
}

func writeHTMLToFile(ctx context.Context, urlStr, content, dir string) {
	logger := log.LoggerFromContext(ctx)
	if dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			logger.Warn(fmt.Sprintf("failed to create debug directory: %v", err))
			return
		}
	}
	host := "page"
	if u, err := url.Parse(urlStr); err == nil && u.Host != "" {
		host = u.Host
	}
	r, err := utils.RandomString(host)
	if err != nil {
		logger.Warn(fmt.Sprintf("failed to generate debug file name: %v", err))
		return
	}
	filename := path.Join(dir, fmt.Sprintf("%s.html", r))
	logger.Debug(fmt.Sprintf("writing html to file %s", filename), slog.String("url", urlStr))
	if err := os.WriteFile(filename, []byte(content), 0644); err != nil {
		logger.Warn(fmt.Sprintf("failed to write html file: %v", err))
	}
}
