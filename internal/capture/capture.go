// Package capture turns DOM events into recorded steps. It only records while
// the session is recording, debounces text input per element and runs the
// interrupt sequence (pause, export, reset) on the interrupt key.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jakopako/steprec/internal/debounce"
	"github.com/jakopako/steprec/internal/dom"
	"github.com/jakopako/steprec/internal/locator"
	"github.com/jakopako/steprec/internal/session"
	"github.com/jakopako/steprec/internal/types"
	"golang.org/x/net/html"
)

// An Exporter receives the steps of a session when the interrupt key is pressed.
type Exporter interface {
	Export(ctx context.Context, steps []types.Step) error
}

type Config struct {
	Debounce     time.Duration `yaml:"debounce" env-default:"1s"`
	Recency      time.Duration `yaml:"recency" env-default:"5s"`
	InterruptKey string        `yaml:"interrupt_key" env-default:"Escape"`
	// IgnoreSelector matches the recorder's own control surface. Events
	// inside it are never recorded.
	IgnoreSelector string `yaml:"ignore_selector" env-default:"#steprec-container, [data-steprec-ignore]"`
}

// DefaultConfig returns the configuration used when no config file is given.
func DefaultConfig() Config {
	return Config{
		Debounce:       time.Second,
		Recency:        5 * time.Second,
		InterruptKey:   "Escape",
		IgnoreSelector: "#steprec-container, [data-steprec-ignore]",
	}
}

type pendingInput struct {
	locator   string
	frame     string
	tag       string
	value     string
	startedAt time.Time
}

type Capture struct {
	session   *session.Session
	resolver  locator.Resolver
	exporter  Exporter
	scheduler *debounce.Scheduler
	now       func() time.Time
	cfg       Config
	logger    *slog.Logger

	onInterrupt func()

	mu        sync.Mutex
	pending   map[string]*pendingInput
	lastValue map[string]string
	writer    map[string]string // frame|locator -> element key of the latest sendKeys step
	closed    bool
}

type Option func(*Capture)

func WithExporter(e Exporter) Option {
	return func(c *Capture) { c.exporter = e }
}

func WithConfig(cfg Config) Option {
	return func(c *Capture) { c.cfg = cfg }
}

// WithClock sets the time source used for debouncing and the recency window.
func WithClock(now func() time.Time, afterFunc debounce.AfterFunc) Option {
	return func(c *Capture) {
		c.now = now
		c.scheduler = debounce.New(debounce.WithAfterFunc(afterFunc))
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Capture) { c.logger = l }
}

// WithInterruptHook registers a function called after the interrupt sequence.
func WithInterruptHook(f func()) Option {
	return func(c *Capture) { c.onInterrupt = f }
}

func New(s *session.Session, r locator.Resolver, opts ...Option) *Capture {
	c := &Capture{
		session:   s,
		resolver:  r,
		now:       time.Now,
		cfg:       DefaultConfig(),
		logger:    slog.Default(),
		pending:   map[string]*pendingInput{},
		lastValue: map[string]string{},
		writer:    map[string]string{},
	}
	for _, o := range opts {
		o(c)
	}
	if c.scheduler == nil {
		c.scheduler = debounce.New()
	}
	c.logger = c.logger.With(slog.String("component", "capture"))
	return c
}

// Handle processes a single event. It never panics; failures are logged and
// the event is dropped.
func (c *Capture) Handle(ctx context.Context, ev Event) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(fmt.Sprintf("dropping %s event: %v", ev.Type, r))
			out = Outcome{}
		}
	}()
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return out
	}

	if ev.Type == EventKeyDown && strings.EqualFold(ev.Key, c.cfg.InterruptKey) {
		c.interrupt(ctx)
		out.Interrupted = true
		return out
	}
	if ev.Type == EventKeyDown && ev.Target == nil {
		ev.Target = ev.Focused
	}
	if ev.Target == nil || c.ignored(ev.Target) {
		return out
	}
	if ev.Type == EventHover {
		res := c.resolve(ev.Doc, ev.Target)
		out.Preview = &res
		return out
	}
	if !c.session.IsRecording() {
		return out
	}

	switch ev.Type {
	case EventClick:
		return c.click(ev)
	case EventInput:
		c.input(ev)
	case EventKeyDown:
		return c.keyDown(ev)
	default:
		c.logger.Debug(fmt.Sprintf("ignoring unknown event type %s", ev.Type))
	}
	return out
}

func (c *Capture) ignored(n *html.Node) bool {
	if c.cfg.IgnoreSelector == "" {
		return false
	}
	matches := dom.Find(dom.Root(n), c.cfg.IgnoreSelector)
	if len(matches) == 0 {
		return false
	}
	for a := n; a != nil; a = a.Parent {
		if slices.Contains(matches, a) {
			return true
		}
	}
	return false
}

func (c *Capture) document(doc *dom.Document, n *html.Node) *dom.Document {
	if doc != nil {
		return doc
	}
	if p := c.session.Page(); p != nil {
		if d := p.DocumentOf(n); d != nil {
			return d
		}
	}
	return &dom.Document{FrameID: types.MainFrame, Root: dom.Root(n)}
}

func (c *Capture) resolve(doc *dom.Document, n *html.Node) locator.Result {
	return c.resolver.Resolve(c.document(doc, n), n)
}

func (c *Capture) record(step types.Step) (types.Step, bool) {
	st, err := c.session.Append(step)
	if err != nil {
		c.logger.Warn(fmt.Sprintf("failed to record %s step: %v", step.Action, err))
		return st, false
	}
	return st, true
}

// stepFor resolves n and returns a step of the given action for it.
func (c *Capture) stepFor(doc *dom.Document, n *html.Node, action types.Action, data string) types.Step {
	res := c.resolve(doc, n)
	return types.Step{
		Locator:    res.Locator,
		Action:     action,
		Data:       data,
		ElementTag: dom.TagName(n),
		FrameID:    res.FrameID,
	}
}

func (c *Capture) click(ev Event) Outcome {
	var out Outcome
	c.flushPending()
	if ev.Modifiers.Alt {
		out.PreventDefault = true
		if st, ok := c.saveByLabel(ev); ok {
			out.Recorded = append(out.Recorded, st)
		}
		return out
	}
	if closestAnchor(ev.Target) != nil {
		out.PreventDefault = true
	}
	if st, ok := c.record(c.stepFor(ev.Doc, ev.Target, types.ActionClick, "")); ok {
		out.Recorded = append(out.Recorded, st)
	}
	return out
}

func closestAnchor(n *html.Node) *html.Node {
	for a := n; a != nil; a = dom.ParentElement(a) {
		if dom.TagName(a) == "a" {
			if _, ok := dom.Attr(a, "href"); ok {
				return a
			}
		}
	}
	return nil
}

func (c *Capture) keyDown(ev Event) Outcome {
	var out Outcome
	focused := ev.Focused
	if focused == nil {
		focused = ev.Target
	}
	value := ev.FocusedValue
	if value == "" {
		value = dom.TextContent(focused)
	}

	var step types.Step
	switch {
	case ev.Modifiers.Ctrl && strings.EqualFold(ev.Key, "v"):
		step = c.stepFor(ev.Doc, focused, types.ActionVerify, value)
		out.PreventDefault = true
	case ev.Modifiers.Ctrl && strings.EqualFold(ev.Key, "g"):
		step = c.stepFor(ev.Doc, focused, types.ActionSave, value)
		out.PreventDefault = true
	case ev.Key == "Tab":
		step = c.stepFor(ev.Doc, focused, types.ActionTab, "")
	case ev.Key == "Enter":
		step = c.stepFor(ev.Doc, focused, types.ActionPressEnter, "")
	default:
		return out
	}
	c.flushPending()
	if st, ok := c.record(step); ok {
		out.Recorded = append(out.Recorded, st)
	}
	return out
}

// inputKey identifies the element an input event belongs to. Different
// elements never share a key, even if they resolve to the same locator.
func inputKey(frame string, n *html.Node) string {
	return fmt.Sprintf("%s|%v", frame, dom.PathOf(n))
}

func (c *Capture) input(ev Event) {
	res := c.resolve(ev.Doc, ev.Target)
	key := inputKey(res.FrameID, ev.Target)

	c.mu.Lock()
	p, ok := c.pending[key]
	if !ok {
		if last, seen := c.lastValue[key]; seen && last == ev.Value {
			c.mu.Unlock()
			c.logger.Debug(fmt.Sprintf("value of %s unchanged, ignoring input", res.Locator))
			return
		}
		p = &pendingInput{
			locator:   res.Locator,
			frame:     res.FrameID,
			tag:       dom.TagName(ev.Target),
			startedAt: c.now(),
		}
		c.pending[key] = p
	}
	p.value = ev.Value
	c.mu.Unlock()

	c.scheduler.Schedule(key, c.cfg.Debounce, func() { c.finalize(key) })
}

// finalize records the pending input under key, either as a new sendKeys
// step or as an update of a recent one for the same element.
func (c *Capture) finalize(key string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(fmt.Sprintf("dropping input: %v", r))
		}
	}()
	c.mu.Lock()
	p, ok := c.pending[key]
	delete(c.pending, key)
	last, seen := c.lastValue[key]
	unchanged := ok && seen && last == p.value
	var owner string
	var owned bool
	if ok {
		owner, owned = c.writer[p.frame+"|"+p.locator]
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	if unchanged {
		c.logger.Debug(fmt.Sprintf("value of %s unchanged, nothing to record", p.locator))
		return
	}
	if !c.session.IsRecording() {
		c.logger.Debug(fmt.Sprintf("dropping input on %s, session is %s", p.locator, c.session.State()))
		return
	}

	// a step written by another element with the same locator is never updated
	if last, found := c.session.LastSendKeys(p.locator, p.frame); found && (!owned || owner == key) && p.startedAt.Sub(last.Timestamp) <= c.cfg.Recency {
		if err := c.session.UpdateData(last.ID, p.value); err != nil {
			c.logger.Warn(fmt.Sprintf("failed to update step %d: %v", last.ID, err))
			return
		}
		c.logger.Debug(fmt.Sprintf("updated step %d with the new value of %s", last.ID, p.locator))
	} else if _, ok := c.record(types.Step{
		Locator:    p.locator,
		Action:     types.ActionSendKeys,
		Data:       p.value,
		ElementTag: p.tag,
		FrameID:    p.frame,
	}); !ok {
		return
	}

	c.mu.Lock()
	c.lastValue[key] = p.value
	c.writer[p.frame+"|"+p.locator] = key
	c.mu.Unlock()
}

// flushPending finalizes all pending input right away so that it is recorded
// before the step that is about to be appended.
func (c *Capture) flushPending() {
	c.scheduler.FlushAll()
}

// interrupt pauses the session, exports the steps if there are any and resets
// the session, whether the export succeeded or not.
func (c *Capture) interrupt(ctx context.Context) {
	if c.session.IsRecording() {
		c.flushPending()
		_ = c.session.Pause()
	}
	steps := c.session.Steps()
	if len(steps) > 0 && c.exporter != nil {
		c.logger.Info(fmt.Sprintf("exporting %d step(s)", len(steps)))
		if err := c.exporter.Export(ctx, steps); err != nil {
			c.logger.Error(fmt.Sprintf("export failed: %v", err))
		}
	} else if len(steps) == 0 {
		c.logger.Info("no steps recorded, skipping export")
	}
	c.session.ForceReset()
	c.mu.Lock()
	clear(c.lastValue)
	clear(c.writer)
	c.mu.Unlock()
	if c.onInterrupt != nil {
		c.onInterrupt()
	}
}

// Close cancels pending input and releases all state. Later events are ignored.
func (c *Capture) Close() {
	c.scheduler.Stop()
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.pending)
	clear(c.lastValue)
	clear(c.writer)
	c.closed = true
}
