package export

import (
	"fmt"
	"regexp"
	"strconv"
	"unicode"

	"github.com/jakopako/steprec/internal/types"
	"github.com/jakopako/steprec/internal/utils"
)

// namePatterns derive a readable element name from a locator. They are tried
// in order; the first capture becomes the camel-cased stem of the name.
var namePatterns = []struct {
	re     *regexp.Regexp
	suffix string
}{
	{regexp.MustCompile(`@data-field-label="([^"]+)"`), "Field"},
	{regexp.MustCompile(`@placeholder="([^"]+)"`), "Field"},
	{regexp.MustCompile(`@aria-label="([^"]+)"`), "Element"},
	{regexp.MustCompile(`@name="([^"]+)"`), "Element"},
	{regexp.MustCompile(`normalize-space\(text\(\)\)="([^"]+)"`), "Button"},
	{regexp.MustCompile(`@title="([^"]+)"`), "Element"},
	{regexp.MustCompile(`@data-testid="([^"]+)"`), "Element"},
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// ElementName returns the Java identifier used for the element of step.
func ElementName(step types.Step) string {
	for _, p := range namePatterns {
		m := p.re.FindStringSubmatch(step.Locator)
		if len(m) < 2 {
			continue
		}
		stem := utils.ToCamelCase(m[1])
		if stem == "" {
			continue
		}
		if unicode.IsDigit(rune(stem[0])) {
			stem = "element" + stem
		}
		return stem + p.suffix
	}
	return fmt.Sprintf("element%d", step.ID)
}

// namer hands out element names. A locator keeps its name, and different
// locators that would share a name get a numeric suffix.
type namer struct {
	byLocator map[string]string
	taken     map[string]string
}

func newNamer() *namer {
	return &namer{byLocator: map[string]string{}, taken: map[string]string{}}
}

func (n *namer) name(step types.Step) (name string, isNew bool) {
	key := step.Frame() + "|" + step.Locator
	if name, ok := n.byLocator[key]; ok {
		return name, false
	}
	base := ElementName(step)
	name = base
	for i := 2; ; i++ {
		if _, ok := n.taken[name]; !ok {
			break
		}
		name = base + strconv.Itoa(i)
	}
	n.taken[name] = key
	n.byLocator[key] = name
	return name, true
}

// methodName returns the name of the step definition method for action on element.
func methodName(action types.Action, element string) string {
	a := nonIdent.ReplaceAllString(action.String(), "_")
	if a == "" {
		a = "act"
	}
	return fmt.Sprintf("user_%s_%s", a, element)
}
