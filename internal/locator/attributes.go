package locator

import (
	"maps"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/jakopako/steprec/internal/dom"
	"golang.org/x/net/html"
)

// Synthetic keys added to the attribute mapping of an element.
const (
	TextKey    = "text()"
	TagNameKey = "tagName"
)

// Attributes maps attribute names (and the synthetic keys TextKey and
// TagNameKey) to their values.
type Attributes map[string]string

// contextRule adds key to the attributes of an element if its closest ancestor
// matching selector carries attr.
type contextRule struct {
	selector string
	attr     string
	key      string
}

var contextRules = []contextRule{
	{selector: "[data-field-label]", attr: "data-field-label", key: "field-label-context"},
	{selector: `[role="tab"]`, attr: "aria-label", key: "tab-context"},
	{selector: "[data-record-type]", attr: "data-record-type", key: "record-context"},
	{selector: "[aria-label]", attr: "aria-label", key: "section-context"},
	{selector: "form", attr: "name", key: "form-context"},
}

func isContextKey(k string) bool {
	return strings.HasSuffix(k, "-context")
}

// isIdentityAttr reports whether name belongs to the id or class family.
// These are never used for locators.
func isIdentityAttr(name string) bool {
	name = strings.ToLower(name)
	switch {
	case name == "id", name == "recordid", strings.HasSuffix(name, "-id"):
		return true
	case name == "class", name == "classname", strings.HasSuffix(name, "-class"):
		return true
	}
	return false
}

// isNoiseAttr reports whether name carries markup or behavior rather than identity.
func isNoiseAttr(name string) bool {
	name = strings.ToLower(name)
	return name == "style" || strings.HasPrefix(name, "on")
}

// ExtractAttributes reads the non-identity attributes of el, its text, its tag
// name and the attributes of its contextual ancestors.
func ExtractAttributes(el *html.Node) Attributes {
	attrs := Attributes{}
	if !dom.IsElement(el) {
		return attrs
	}
	for _, a := range el.Attr {
		if isIdentityAttr(a.Key) || isNoiseAttr(a.Key) {
			continue
		}
		attrs[strings.ToLower(a.Key)] = a.Val
	}
	if t := dom.TextContent(el); t != "" {
		attrs[TextKey] = t
	}
	attrs[TagNameKey] = dom.TagName(el)
	for _, r := range contextRules {
		c := dom.Closest(el, r.selector)
		if c == nil {
			continue
		}
		if v := dom.AttrValue(c, r.attr); v != "" {
			attrs[r.key] = v
		}
	}
	return attrs
}

var volatilePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d+$`),
	regexp.MustCompile(`(?i)[a-f0-9]{8,}`),
	regexp.MustCompile(`(?i)timestamp|session|guid`),
	regexp.MustCompile(`\d{4,}`),
}

var attributeBlacklist = []string{"id", "class", "data-id", "recordid", "data-aura-id"}

// IsStableValue reports whether v may be embedded in a reusable locator, i.e.
// it does not look like a record id, hash, timestamp or session token and its
// length is between 2 and 99 characters.
func IsStableValue(v string) bool {
	l := utf8.RuneCountInString(v)
	if l <= 1 || l >= 100 {
		return false
	}
	for _, p := range volatilePatterns {
		if p.MatchString(v) {
			return false
		}
	}
	return true
}

// FilterAttributes returns the subset of attrs whose values are stable.
func FilterAttributes(attrs Attributes) Attributes {
	filtered := Attributes{}
	for k, v := range attrs {
		if slices.Contains(attributeBlacklist, strings.ToLower(k)) {
			continue
		}
		if !IsStableValue(v) {
			continue
		}
		filtered[k] = v
	}
	return filtered
}

// Real returns the keys of real element attributes, without synthetic and
// context keys, sorted.
func (a Attributes) Real() []string {
	var keys []string
	for _, k := range slices.Sorted(maps.Keys(a)) {
		if k == TextKey || k == TagNameKey || isContextKey(k) {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}
