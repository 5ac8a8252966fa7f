package locator

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"github.com/jakopako/steprec/internal/dom"
	"golang.org/x/net/html"
)

// A Verifier decides whether a candidate locator identifies exactly one node
// of a document. If target is not nil the single match must be target.
type Verifier interface {
	Unique(doc *dom.Document, expr string, target *html.Node) bool
}

const maxCachedExpressions = 1024

// XPathVerifier evaluates locators with antchfx/xpath. Compiled expressions
// are cached since the same candidates are evaluated over and over during a
// recording.
type XPathVerifier struct {
	mu     sync.Mutex
	cache  map[string]*xpath.Expr
	logger *slog.Logger
}

func NewXPathVerifier(logger *slog.Logger) *XPathVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &XPathVerifier{
		cache:  map[string]*xpath.Expr{},
		logger: logger.With(slog.String("component", "verifier")),
	}
}

// Compile compiles expr or returns the cached expression.
func (v *XPathVerifier) Compile(expr string) (*xpath.Expr, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if e, ok := v.cache[expr]; ok {
		return e, nil
	}
	e, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid locator %q: %w", expr, err)
	}
	if len(v.cache) >= maxCachedExpressions {
		clear(v.cache)
	}
	v.cache[expr] = e
	return e, nil
}

// Evaluate returns all element nodes of doc selected by expr.
func (v *XPathVerifier) Evaluate(doc *dom.Document, expr string) (nodes []*html.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			nodes, err = nil, fmt.Errorf("evaluating locator %q: %v", expr, r)
		}
	}()
	e, err := v.Compile(expr)
	if err != nil {
		return nil, err
	}
	return htmlquery.QuerySelectorAll(doc.Root, e), nil
}

func (v *XPathVerifier) Unique(doc *dom.Document, expr string, target *html.Node) bool {
	if doc == nil || expr == "" {
		return false
	}
	nodes, err := v.Evaluate(doc, expr)
	if err != nil {
		v.logger.Debug(fmt.Sprintf("rejecting candidate: %v", err), slog.String("frame", doc.FrameID))
		return false
	}
	if len(nodes) != 1 {
		v.logger.Debug(fmt.Sprintf("rejecting candidate %s: %d matches", expr, len(nodes)), slog.String("frame", doc.FrameID))
		return false
	}
	if target != nil && nodes[0] != target {
		v.logger.Debug(fmt.Sprintf("rejecting candidate %s: matches a different node", expr), slog.String("frame", doc.FrameID))
		return false
	}
	return true
}
