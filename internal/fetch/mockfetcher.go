package fetch

import (
	"context"
	"fmt"

	"github.com/jakopako/steprec/internal/log"
)

type MockFetcher struct {
	*FetcherConfig
	pagesMap map[string]string
	// Requests records every url that was asked for, in order.
	Requests []string
}

func NewMockFetcher(fc *FetcherConfig) *MockFetcher {
	mf := &MockFetcher{
		FetcherConfig: fc,
		pagesMap:      map[string]string{},
	}
	for _, p := range fc.MockPages {
		mf.pagesMap[p.URL] = p.Content
	}
	return mf
}

func (m *MockFetcher) Fetch(ctx context.Context, urlStr string, opts FetchOpts) (string, error) {
	m.Requests = append(m.Requests, urlStr)
	if p, ok := m.pagesMap[urlStr]; ok {
		if log.Debug {
			writeHTMLToFile(ctx, urlStr, p, m.DebugDir)
		}
		return p, nil
	}
	return "", fmt.Errorf("page %s not found", urlStr)
}

// To comply with the Fetcher interface
func (m *MockFetcher) Cancel() {}
