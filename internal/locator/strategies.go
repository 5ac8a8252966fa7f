package locator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jakopako/steprec/internal/dom"
	"golang.org/x/net/html"
)

// Strategy names, also reported in Result.Strategy.
const (
	StrategyText               = "text"
	StrategyTitle              = "title"
	StrategyLabel              = "label"
	StrategyName               = "name"
	StrategyAttribute          = "attribute"
	StrategyCombination        = "combination"
	StrategyStructural         = "structural"
	StrategyPositional         = "positional"
	StrategyFallbackComposite  = "fallback-composite"
	StrategyFallbackPositional = "fallback-positional"
)

const (
	maxTextLength   = 50
	maxLabelLevels  = 2
	structuralDepth = 3
)

// A Strategy builds candidate locators for an element. Candidates are tried
// in the returned order. attrs is the filtered attribute mapping of el.
type Strategy struct {
	Name       string
	Candidates func(el *html.Node, attrs Attributes) []string
}

// DefaultStrategies returns the strategies in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: StrategyText, Candidates: textCandidates},
		{Name: StrategyTitle, Candidates: titleCandidates},
		{Name: StrategyLabel, Candidates: labelCandidates},
		{Name: StrategyName, Candidates: nameCandidates},
		{Name: StrategyAttribute, Candidates: attributeCandidates},
		{Name: StrategyCombination, Candidates: combinationCandidates},
		{Name: StrategyStructural, Candidates: structuralCandidates},
		{Name: StrategyPositional, Candidates: positionalCandidates},
	}
}

func textCandidates(el *html.Node, _ Attributes) []string {
	t := dom.DirectText(el)
	if t == "" || utf8.RuneCountInString(t) >= maxTextLength || !IsStableValue(t) {
		return nil
	}
	tag, expr := dom.TagName(el), dom.DirectTextExpr(el)
	lit := Literal(t)
	return []string{
		fmt.Sprintf("//%s[normalize-space(%s)=%s]", tag, expr, lit),
		fmt.Sprintf("//%s[contains(%s,%s)]", tag, expr, lit),
	}
}

func titleCandidates(el *html.Node, attrs Attributes) []string {
	if v, ok := attrs["title"]; ok {
		return []string{fmt.Sprintf("//%s[@title=%s]", dom.TagName(el), Literal(v))}
	}
	return nil
}

// labelPredicate returns the predicate selecting label by its text, preferring
// its own text over the text of its descendants.
func labelPredicate(label *html.Node) string {
	if t := dom.DirectText(label); t != "" {
		return fmt.Sprintf("normalize-space(%s)=%s", dom.DirectTextExpr(label), Literal(t))
	}
	if t := dom.TextContent(label); t != "" {
		return fmt.Sprintf("normalize-space(.)=%s", Literal(t))
	}
	return ""
}

func labelCandidates(el *html.Node, _ Attributes) []string {
	var candidates []string
	tag := dom.TagName(el)

	// enclosing label
	if lbl := dom.Closest(el, "label"); lbl != nil {
		if p := labelPredicate(lbl); p != "" {
			candidates = append(candidates, fmt.Sprintf("//label[%s]//%s", p, tag))
		}
	}

	// label referencing the element by id
	if id, ok := dom.Attr(el, "id"); ok && id != "" {
		for _, lbl := range dom.Find(dom.Root(el), "label[for]") {
			if dom.AttrValue(lbl, "for") != id {
				continue
			}
			if p := labelPredicate(lbl); p != "" {
				candidates = append(candidates, fmt.Sprintf("//%s[@id=//label[%s]/@for]", tag, p))
			}
			break
		}
	}

	// closest preceding text acting as an implicit label
	if prev := precedingLabel(el); prev != "" {
		candidates = append(candidates, fmt.Sprintf("(//text()[normalize-space()=%s]/following::%s)[1]", Literal(prev), tag))
	}
	return candidates
}

// precedingLabel returns the text of the closest preceding sibling of el, or
// of one of its ancestors up to maxLabelLevels, that has text. The walk
// never leaves <body>.
func precedingLabel(el *html.Node) string {
	current := el
	for range maxLabelLevels {
		if current == nil || !dom.IsElement(current) {
			return ""
		}
		switch dom.TagName(current) {
		case "body", "html":
			return ""
		}
		for s := dom.PrevElementSibling(current); s != nil; s = dom.PrevElementSibling(s) {
			if nonContent[dom.TagName(s)] {
				continue
			}
			if t := dom.TextContent(s); t != "" {
				if utf8.RuneCountInString(t) >= 100 {
					return ""
				}
				return t
			}
		}
		current = dom.ParentElement(current)
	}
	return ""
}

// elements whose text is never rendered as a label
var nonContent = map[string]bool{
	"script":   true,
	"style":    true,
	"head":     true,
	"title":    true,
	"template": true,
	"noscript": true,
}

func nameCandidates(el *html.Node, attrs Attributes) []string {
	if v, ok := attrs["name"]; ok {
		return []string{fmt.Sprintf("//%s[@name=%s]", dom.TagName(el), Literal(v))}
	}
	return nil
}

var curatedAttributes = []string{"aria-label", "placeholder", "title", "role"}

func attributeCandidates(el *html.Node, attrs Attributes) []string {
	var candidates []string
	tag := dom.TagName(el)
	for _, k := range curatedAttributes {
		if v, ok := attrs[k]; ok {
			candidates = append(candidates, fmt.Sprintf("//%s[@%s=%s]", tag, k, Literal(v)))
			break
		}
	}
	// input inside a labeled lookup widget
	if v, ok := attrs["field-label-context"]; ok && tag == "input" {
		if c := dom.Closest(el, "[data-field-label]"); c != nil {
			candidates = append(candidates, fmt.Sprintf("//%s[@data-field-label=%s]//input", dom.TagName(c), Literal(v)))
		}
	}
	return candidates
}

func conjunction(attrs Attributes, keys []string) string {
	conds := make([]string, 0, len(keys))
	for _, k := range keys {
		conds = append(conds, fmt.Sprintf("@%s=%s", k, Literal(attrs[k])))
	}
	return strings.Join(conds, " and ")
}

func combinationCandidates(el *html.Node, attrs Attributes) []string {
	var candidates []string
	tag := dom.TagName(el)
	keys := attrs.Real()
	if len(keys) >= 2 {
		candidates = append(candidates, fmt.Sprintf("//%s[%s]", tag, conjunction(attrs, keys)))
	}
	if len(keys) >= 1 {
		if anchor := contextAnchor(el); anchor != "" {
			candidates = append(candidates, fmt.Sprintf("%s//%s[%s]", anchor, tag, conjunction(attrs, keys)))
		}
	}
	return candidates
}

// contextAnchor returns a locator for the nearest contextual ancestor of el
// (named form, record-type region, tab, labeled field) or "".
func contextAnchor(el *html.Node) string {
	for a := dom.ParentElement(el); a != nil; a = dom.ParentElement(a) {
		tag := dom.TagName(a)
		if v := dom.AttrValue(a, "name"); tag == "form" && IsStableValue(v) {
			return fmt.Sprintf("//form[@name=%s]", Literal(v))
		}
		if v := dom.AttrValue(a, "data-record-type"); IsStableValue(v) {
			return fmt.Sprintf("//%s[@data-record-type=%s]", tag, Literal(v))
		}
		if v := dom.AttrValue(a, "aria-label"); dom.AttrValue(a, "role") == "tab" && IsStableValue(v) {
			return fmt.Sprintf("//%s[@role=\"tab\" and @aria-label=%s]", tag, Literal(v))
		}
		if v := dom.AttrValue(a, "data-field-label"); IsStableValue(v) {
			return fmt.Sprintf("//%s[@data-field-label=%s]", tag, Literal(v))
		}
	}
	return ""
}

func structuralCandidates(el *html.Node, _ Attributes) []string {
	var path []string
	current := el
	for range structuralDepth {
		if !dom.IsElement(current) {
			break
		}
		step := dom.TagName(current)
		if v := dom.AttrValue(current, "data-testid"); IsStableValue(v) {
			step = fmt.Sprintf("%s[@data-testid=%s]", step, Literal(v))
		} else if v := dom.AttrValue(current, "aria-label"); IsStableValue(v) {
			step = fmt.Sprintf("%s[@aria-label=%s]", step, Literal(v))
		}
		path = append([]string{step}, path...)
		current = current.Parent
	}
	if len(path) == 0 {
		return nil
	}
	return []string{"//" + strings.Join(path, "/")}
}

// Positional returns the locator of el by its position among same-tag siblings.
func Positional(el *html.Node) string {
	tag := dom.TagName(el)
	if tag == "" {
		return ""
	}
	index, count := dom.SameTagIndex(el)
	if count > 1 {
		return fmt.Sprintf("//%s[%d]", tag, index)
	}
	return "//" + tag
}

func positionalCandidates(el *html.Node, _ Attributes) []string {
	if p := Positional(el); p != "" {
		return []string{p}
	}
	return nil
}

// compositeFallback ands whatever role, aria-label, name and title values
// survived filtering, plus a text clause for short text.
func compositeFallback(el *html.Node, attrs Attributes) string {
	var conds []string
	for _, k := range []string{"role", "aria-label", "name", "title"} {
		if v, ok := attrs[k]; ok {
			conds = append(conds, fmt.Sprintf("@%s=%s", k, Literal(v)))
		}
	}
	if t := dom.DirectText(el); t != "" && utf8.RuneCountInString(t) < maxTextLength && IsStableValue(t) {
		conds = append(conds, fmt.Sprintf("contains(%s,%s)", dom.DirectTextExpr(el), Literal(t)))
	}
	if len(conds) == 0 {
		return ""
	}
	return fmt.Sprintf("//%s[%s]", dom.TagName(el), strings.Join(conds, " and "))
}
