package capture

import (
	"fmt"

	"github.com/antchfx/htmlquery"
	"github.com/jakopako/steprec/internal/dom"
	"github.com/jakopako/steprec/internal/locator"
	"github.com/jakopako/steprec/internal/types"
	"golang.org/x/net/html"
)

// maxLabelDepth limits how far labelFor walks up from the clicked element.
const maxLabelDepth = 20

// valuePatterns locate the value node that belongs to a field label. %s is
// replaced by the label as an XPath literal. They are tried in order, the
// first one that matches anything wins.
var valuePatterns = []string{
	"(//p[@title=%s])[1]/following-sibling::*/descendant::a",
	"//span[normalize-space(text())=%s]/../following-sibling::*/descendant::button/span",
	"//span[normalize-space(text())=%s]/parent::div/following-sibling::*/descendant::lightning-formatted-text",
	"//p[normalize-space(text())=%s]/following-sibling::*//a",
	"//dt[normalize-space(.)=%s]/following-sibling::dd[1]",
	"//th[normalize-space(.)=%s]/following-sibling::td[1]",
	"//label[normalize-space(.)=%s]/following-sibling::*[1]",
	"//*[normalize-space(text())=%s]/following-sibling::*[1]",
}

// labelFor returns the text of the field label next to n. It looks for the
// first previous sibling with text on n and its ancestors.
func labelFor(n *html.Node) string {
	for a, depth := n, 0; a != nil && depth < maxLabelDepth; a, depth = dom.ParentElement(a), depth+1 {
		for s := dom.PrevElementSibling(a); s != nil; s = dom.PrevElementSibling(s) {
			if t := dom.TextContent(s); t != "" {
				return t
			}
		}
	}
	return ""
}

// saveByLabel records a save step for the value node paired with the label
// of the clicked field. Nothing is recorded if no pairing is found.
func (c *Capture) saveByLabel(ev Event) (types.Step, bool) {
	doc := c.document(ev.Doc, ev.Target)
	label := labelFor(ev.Target)
	if label == "" {
		c.logger.Warn("no field label found next to the clicked element, nothing saved")
		return types.Step{}, false
	}
	lit := locator.Literal(label)
	for _, p := range valuePatterns {
		expr := fmt.Sprintf(p, lit)
		nodes, err := htmlquery.QueryAll(doc.Root, expr)
		if err != nil {
			c.logger.Debug(fmt.Sprintf("skipping value pattern %s: %v", expr, err))
			continue
		}
		if len(nodes) == 0 {
			continue
		}
		return c.record(types.Step{
			Locator:    fmt.Sprintf("(%s)[1]", expr),
			Action:     types.ActionSave,
			Data:       label,
			ElementTag: dom.TagName(nodes[0]),
			FrameID:    doc.FrameID,
		})
	}
	c.logger.Warn(fmt.Sprintf("no value found for field label %q, nothing saved", label))
	return types.Step{}, false
}
