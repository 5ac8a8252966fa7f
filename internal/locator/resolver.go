// Package locator synthesizes XPath locators for elements. Candidates are
// produced by an ordered list of strategies and accepted only if they
// identify the element uniquely within its own (frame) document.
package locator

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/jakopako/steprec/internal/dom"
	"github.com/jakopako/steprec/internal/types"
	"golang.org/x/net/html"
)

// Result is the outcome of resolving an element.
type Result struct {
	Locator  string `json:"locator" yaml:"locator"`
	FrameID  string `json:"frameId" yaml:"frame_id"`
	Strategy string `json:"strategy" yaml:"strategy"`
	Unique   bool   `json:"unique" yaml:"unique"`
}

// A Resolver computes a locator for an element of doc. It always returns a
// locator, possibly a non-unique one.
type Resolver interface {
	Resolve(doc *dom.Document, el *html.Node) Result
}

// ResolverConfig configures the XPathResolver.
type ResolverConfig struct {
	DisabledStrategies []string `yaml:"disabled_strategies" env:"STEPREC_DISABLED_STRATEGIES" env-separator:","`
}

type XPathResolver struct {
	strategies []Strategy
	verifier   Verifier
	logger     *slog.Logger
}

type Option func(*XPathResolver)

func WithStrategies(s []Strategy) Option {
	return func(r *XPathResolver) { r.strategies = s }
}

func WithVerifier(v Verifier) Option {
	return func(r *XPathResolver) { r.verifier = v }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *XPathResolver) { r.logger = l }
}

// WithConfig drops the strategies listed in rc.DisabledStrategies.
func WithConfig(rc ResolverConfig) Option {
	return func(r *XPathResolver) {
		r.strategies = slices.DeleteFunc(slices.Clone(r.strategies), func(s Strategy) bool {
			return slices.Contains(rc.DisabledStrategies, s.Name)
		})
	}
}

func NewXPathResolver(opts ...Option) *XPathResolver {
	r := &XPathResolver{
		strategies: DefaultStrategies(),
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	r.logger = r.logger.With(slog.String("component", "resolver"))
	if r.verifier == nil {
		r.verifier = NewXPathVerifier(r.logger)
	}
	return r
}

func (r *XPathResolver) Resolve(doc *dom.Document, el *html.Node) (res Result) {
	if doc == nil {
		doc = &dom.Document{FrameID: types.MainFrame, Root: dom.Root(el)}
	}
	res.FrameID = doc.FrameID
	if !dom.IsElement(el) {
		r.logger.Warn("cannot resolve a node that is not an element")
		return res
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error(fmt.Sprintf("resolving %s panicked: %v", dom.TagName(el), rec))
			res = Result{
				Locator:  Positional(el),
				FrameID:  doc.FrameID,
				Strategy: StrategyFallbackPositional,
			}
		}
	}()

	attrs := FilterAttributes(ExtractAttributes(el))
	for _, s := range r.strategies {
		for _, c := range s.Candidates(el, attrs) {
			if r.verifier.Unique(doc, c, el) {
				r.logger.Debug(fmt.Sprintf("resolved %s to %s", dom.TagName(el), c), slog.String("strategy", s.Name), slog.String("frame", doc.FrameID))
				return Result{Locator: c, FrameID: doc.FrameID, Strategy: s.Name, Unique: true}
			}
		}
	}

	res.Locator = compositeFallback(el, attrs)
	res.Strategy = StrategyFallbackComposite
	if res.Locator == "" {
		res.Locator = Positional(el)
		res.Strategy = StrategyFallbackPositional
	}
	res.Unique = r.verifier.Unique(doc, res.Locator, el)
	r.logger.Warn(fmt.Sprintf("no unique locator found for %s, using fallback %s", dom.TagName(el), res.Locator), slog.String("frame", doc.FrameID))
	return res
}
