// Package dom holds parsed documents, the frame registry of a page and the
// traversal helpers the locator engine works with.
package dom

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jakopako/steprec/internal/fetch"
	"github.com/jakopako/steprec/internal/log"
	"github.com/jakopako/steprec/internal/types"
	"golang.org/x/net/html"
)

// Document is a parsed html document belonging to one browsing context (frame).
type Document struct {
	FrameID string
	URL     string
	Root    *html.Node
}

// Parse parses the html read from r into a Document for the given frame.
func Parse(frameID, docURL string, r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document of frame %s: %w", frameID, err)
	}
	if frameID == "" {
		frameID = types.MainFrame
	}
	return &Document{FrameID: frameID, URL: docURL, Root: root}, nil
}

// ParseString is like Parse but reads from s.
func ParseString(frameID, docURL, s string) (*Document, error) {
	return Parse(frameID, docURL, strings.NewReader(s))
}

// Contains reports whether n belongs to the tree of d.
func (d *Document) Contains(n *html.Node) bool {
	return d != nil && n != nil && Root(n) == d.Root
}

// Page is the main document together with all accessible frame documents.
type Page struct {
	Main   *Document
	frames map[string]*Document
	order  []string
}

func NewPage(main *Document) *Page {
	main.FrameID = types.MainFrame
	return &Page{
		Main:   main,
		frames: map[string]*Document{types.MainFrame: main},
		order:  []string{types.MainFrame},
	}
}

// AddFrame registers a frame document. A frame with an already known id replaces the old one.
func (p *Page) AddFrame(d *Document) {
	if _, ok := p.frames[d.FrameID]; !ok {
		p.order = append(p.order, d.FrameID)
	}
	p.frames[d.FrameID] = d
}

// Frame returns the document registered under id.
func (p *Page) Frame(id string) (*Document, bool) {
	if id == "" {
		id = types.MainFrame
	}
	d, ok := p.frames[id]
	return d, ok
}

// FrameIDs returns the ids of all registered documents in registration order.
func (p *Page) FrameIDs() []string {
	return append([]string(nil), p.order...)
}

// DocumentOf returns the document n belongs to, or nil if n is not part of the page.
func (p *Page) DocumentOf(n *html.Node) *Document {
	root := Root(n)
	for _, id := range p.order {
		if p.frames[id].Root == root {
			return p.frames[id]
		}
	}
	return nil
}

// FrameID derives the id of a frame element: its name, its id, or its position.
func FrameID(frameEl *html.Node, index int) string {
	if name := AttrValue(frameEl, "name"); name != "" {
		return name
	}
	if id := AttrValue(frameEl, "id"); id != "" {
		return id
	}
	return fmt.Sprintf("frame-%d", index)
}

// DiscoverFrames registers the documents of all iframes and frames of the main
// document. Inline (srcdoc) frames are parsed directly, same-origin frames are
// loaded through f. Cross-origin frames, and frames that cannot be loaded, are
// left out of the registry.
func DiscoverFrames(ctx context.Context, p *Page, f fetch.Fetcher) {
	logger := log.LoggerFromContext(ctx).With(slog.String("component", "frames"))
	base, _ := url.Parse(p.Main.URL)
	for i, fe := range Find(p.Main.Root, "iframe, frame") {
		id := FrameID(fe, i)
		if srcdoc, ok := Attr(fe, "srcdoc"); ok {
			d, err := ParseString(id, p.Main.URL, srcdoc)
			if err != nil {
				logger.Debug(fmt.Sprintf("skipping frame %s: %v", id, err))
				continue
			}
			p.AddFrame(d)
			continue
		}
		src := AttrValue(fe, "src")
		if src == "" || base == nil || f == nil {
			continue
		}
		u, err := base.Parse(src)
		if err != nil || !sameOrigin(base, u) {
			logger.Debug(fmt.Sprintf("skipping inaccessible frame %s (%s)", id, src))
			continue
		}
		content, err := f.Fetch(ctx, u.String(), fetch.FetchOpts{})
		if err != nil {
			logger.Debug(fmt.Sprintf("skipping frame %s: %v", id, err))
			continue
		}
		d, err := ParseString(id, u.String(), content)
		if err != nil {
			logger.Debug(fmt.Sprintf("skipping frame %s: %v", id, err))
			continue
		}
		p.AddFrame(d)
	}
	logger.Debug(fmt.Sprintf("registered %d frame(s)", len(p.order)-1))
}

func sameOrigin(a, b *url.URL) bool {
	if a.Scheme == "file" && b.Scheme == "file" {
		return true
	}
	return a.Scheme == b.Scheme && a.Host == b.Host
}
