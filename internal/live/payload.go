package live

import (
	"errors"
	"fmt"

	"github.com/jakopako/steprec/internal/capture"
	"github.com/jakopako/steprec/internal/dom"
	"github.com/jakopako/steprec/internal/types"
)

var errStaleSnapshot = errors.New("target not found in document snapshot")

// Payload is sent by the injected script for every DOM event. It carries a
// snapshot of the frame document and the element-index path of the target.
type Payload struct {
	Type         string `json:"type"`
	Frame        string `json:"frame"`
	URL          string `json:"url"`
	HTML         string `json:"html"`
	Path         []int  `json:"path"`
	Tag          string `json:"tag"`
	Value        string `json:"value"`
	Key          string `json:"key"`
	Alt          bool   `json:"alt"`
	Ctrl         bool   `json:"ctrl"`
	Shift        bool   `json:"shift"`
	Meta         bool   `json:"meta"`
	FocusedPath  []int  `json:"focusedPath"`
	FocusedValue string `json:"focusedValue"`
}

// Event parses the snapshot and turns p into a capture event.
func (p Payload) Event() (capture.Event, error) {
	frame := p.Frame
	if frame == "" {
		frame = types.MainFrame
	}
	doc, err := dom.ParseString(frame, p.URL, p.HTML)
	if err != nil {
		return capture.Event{}, fmt.Errorf("failed to parse snapshot of frame %s: %w", frame, err)
	}
	ev := capture.Event{
		Type:         capture.EventType(p.Type),
		Doc:          doc,
		Value:        p.Value,
		Key:          p.Key,
		Modifiers:    capture.Modifiers{Alt: p.Alt, Ctrl: p.Ctrl, Shift: p.Shift, Meta: p.Meta},
		FocusedValue: p.FocusedValue,
	}
	// the interrupt key is handled without a target
	if len(p.Path) > 0 {
		ev.Target = dom.NodeAtPath(doc.Root, p.Path)
		if ev.Target == nil || (p.Tag != "" && dom.TagName(ev.Target) != p.Tag) {
			return capture.Event{}, fmt.Errorf("%s event on <%s> %v: %w", p.Type, p.Tag, p.Path, errStaleSnapshot)
		}
	}
	if len(p.FocusedPath) > 0 {
		ev.Focused = dom.NodeAtPath(doc.Root, p.FocusedPath)
	}
	return ev, nil
}
