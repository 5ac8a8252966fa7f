package locator

import (
	"fmt"
	"strings"

	"github.com/jakopako/steprec/internal/utils"
)

// Clean collapses whitespace runs in s into single spaces and trims it.
func Clean(s string) string {
	return utils.CollapseSpace(s)
}

// Literal returns s, cleaned, as a valid XPath 1.0 string literal.
// Double quotes are preferred; strings containing both quote characters are
// built with concat().
func Literal(s string) string {
	s = Clean(s)
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	var parts []string
	for i, p := range strings.Split(s, `"`) {
		if i > 0 {
			parts = append(parts, `'"'`)
		}
		if p != "" {
			parts = append(parts, `"`+p+`"`)
		}
	}
	return fmt.Sprintf("concat(%s)", strings.Join(parts, ", "))
}
