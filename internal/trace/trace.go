// Package trace replays recorded interaction traces against a parsed page.
// Events carry virtual-time offsets, so a replay is deterministic.
package trace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/hashicorp/go-multierror"
	"github.com/jakopako/steprec/internal/capture"
	"github.com/jakopako/steprec/internal/debounce"
	"github.com/jakopako/steprec/internal/dom"
	"github.com/jakopako/steprec/internal/types"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

// Trace is a sequence of DOM events on one page.
type Trace struct {
	URL         string  `yaml:"url"`
	File        string  `yaml:"file"`
	Description string  `yaml:"description"`
	Events      []Event `yaml:"events"`
}

// Event is a single interaction. Target and Focused are XPath expressions
// evaluated in the document of Frame.
type Event struct {
	At        time.Duration `yaml:"at"`
	Type      string        `yaml:"type"`
	Target    string        `yaml:"target"`
	Frame     string        `yaml:"frame"`
	Value     string        `yaml:"value"`
	Key       string        `yaml:"key"`
	Modifiers []string      `yaml:"modifiers"`
	Focused   string        `yaml:"focused"`
}

var eventTypes = map[string]bool{
	string(capture.EventHover):   true,
	string(capture.EventClick):   true,
	string(capture.EventInput):   true,
	string(capture.EventKeyDown): true,
}

// Load reads and validates the trace file at path.
func Load(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var t Trace
	d := yaml.NewDecoder(f)
	d.KnownFields(true)
	if err := d.Decode(&t); err != nil {
		return nil, fmt.Errorf("error decoding trace %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate reports every problem of t at once.
func (t *Trace) Validate() error {
	var errs *multierror.Error
	if t.URL == "" && t.File == "" {
		errs = multierror.Append(errs, errors.New("either url or file is required"))
	}
	var last time.Duration
	for i, e := range t.Events {
		if !eventTypes[e.Type] {
			errs = multierror.Append(errs, fmt.Errorf("event %d: unknown type %q", i, e.Type))
		}
		if e.Target == "" && e.Type != string(capture.EventKeyDown) {
			errs = multierror.Append(errs, fmt.Errorf("event %d: %s needs a target", i, e.Type))
		}
		if e.At < last {
			errs = multierror.Append(errs, fmt.Errorf("event %d: at %v is before the previous event", i, e.At))
		}
		last = max(last, e.At)
		if _, err := modifiers(e.Modifiers); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("event %d: %w", i, err))
		}
	}
	return errs.ErrorOrNil()
}

func modifiers(names []string) (capture.Modifiers, error) {
	var m capture.Modifiers
	for _, n := range names {
		switch strings.ToLower(n) {
		case "alt":
			m.Alt = true
		case "ctrl":
			m.Ctrl = true
		case "shift":
			m.Shift = true
		case "meta":
			m.Meta = true
		default:
			return m, fmt.Errorf("unknown modifier %q", n)
		}
	}
	return m, nil
}

// A Handler processes capture events, usually a *capture.Capture.
type Handler interface {
	Handle(ctx context.Context, ev capture.Event) capture.Outcome
}

// Player feeds the events of a trace into a handler, advancing a virtual clock
// between them.
type Player struct {
	clock  *debounce.ManualClock
	settle time.Duration
	logger *slog.Logger
}

// NewPlayer returns a player driving clock. After the last event the clock is
// advanced by settle so that pending input is finalized.
func NewPlayer(clock *debounce.ManualClock, settle time.Duration) *Player {
	return &Player{
		clock:  clock,
		settle: settle,
		logger: slog.Default().With(slog.String("component", "trace")),
	}
}

// Play replays t on page. Events whose target cannot be found are skipped with
// a warning. The outcomes are returned in event order.
func (p *Player) Play(ctx context.Context, t *Trace, page *dom.Page, h Handler) ([]capture.Outcome, error) {
	start := p.clock.Now()
	outcomes := make([]capture.Outcome, 0, len(t.Events))
	for i, e := range t.Events {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		p.clock.AdvanceTo(start.Add(e.At))
		ev, err := p.event(e, page)
		if err != nil {
			p.logger.Warn(fmt.Sprintf("skipping event %d: %v", i, err))
			outcomes = append(outcomes, capture.Outcome{})
			continue
		}
		out := h.Handle(ctx, ev)
		outcomes = append(outcomes, out)
		if out.Interrupted {
			p.logger.Info(fmt.Sprintf("interrupted at event %d", i))
		}
	}
	p.clock.Advance(p.settle)
	return outcomes, nil
}

func (p *Player) event(e Event, page *dom.Page) (capture.Event, error) {
	frame := e.Frame
	if frame == "" {
		frame = types.MainFrame
	}
	doc, ok := page.Frame(frame)
	if !ok {
		return capture.Event{}, fmt.Errorf("frame %s is not registered", frame)
	}
	mods, err := modifiers(e.Modifiers)
	if err != nil {
		return capture.Event{}, err
	}
	ev := capture.Event{
		Type:      capture.EventType(e.Type),
		Doc:       doc,
		Value:     e.Value,
		Key:       e.Key,
		Modifiers: mods,
	}
	if e.Target != "" {
		if ev.Target, err = queryOne(doc, e.Target); err != nil {
			return capture.Event{}, err
		}
	}
	if e.Focused != "" {
		if ev.Focused, err = queryOne(doc, e.Focused); err != nil {
			return capture.Event{}, err
		}
		ev.FocusedValue = dom.AttrValue(ev.Focused, "value")
	}
	return ev, nil
}

func queryOne(doc *dom.Document, expr string) (*html.Node, error) {
	n, err := htmlquery.Query(doc.Root, expr)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %s: %w", expr, err)
	}
	if n == nil {
		return nil, fmt.Errorf("no element matches %s in frame %s", expr, doc.FrameID)
	}
	return n, nil
}
