package capture

import (
	"github.com/jakopako/steprec/internal/dom"
	"github.com/jakopako/steprec/internal/locator"
	"github.com/jakopako/steprec/internal/types"
	"golang.org/x/net/html"
)

type EventType string

const (
	EventHover   EventType = "hover"
	EventClick   EventType = "click"
	EventInput   EventType = "input"
	EventKeyDown EventType = "keydown"
)

type Modifiers struct {
	Alt   bool `json:"alt" yaml:"alt"`
	Ctrl  bool `json:"ctrl" yaml:"ctrl"`
	Shift bool `json:"shift" yaml:"shift"`
	Meta  bool `json:"meta" yaml:"meta"`
}

// Event is a DOM event forwarded by a host.
type Event struct {
	Type   EventType
	Target *html.Node
	// Doc is the document Target belongs to. If nil it is looked up in the
	// frame registry of the session.
	Doc *dom.Document
	// Value is the current value of the target field for input events.
	Value     string
	Key       string
	Modifiers Modifiers
	// Focused is the element holding the focus for keydown events. Target is
	// used if it is nil.
	Focused *html.Node
	// FocusedValue is the current value of the focused field, if it has one.
	FocusedValue string
}

// Outcome tells the host what the capture did with an event.
type Outcome struct {
	// Recorded holds the steps appended or updated as a direct result of the event.
	Recorded []types.Step
	// PreventDefault is set if the host should suppress the default action.
	PreventDefault bool
	// Preview is the resolved locator of a hovered element.
	Preview *locator.Result
	// Interrupted is set if the event triggered the interrupt sequence.
	Interrupted bool
}
