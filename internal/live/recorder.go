// Package live records interactions in a real browser. A listener script is
// injected into every same-origin frame and reports DOM events through a
// runtime binding; each event is turned into a capture event.
package live

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/jakopako/steprec/internal/capture"
	"github.com/jakopako/steprec/internal/session"
	"golang.org/x/sync/errgroup"
)

const bindingName = "steprecEmit"

//go:embed recorder.js
var recorderScript string

type Config struct {
	Headless     bool   `yaml:"headless" env:"STEPREC_HEADLESS"`
	UserAgent    string `yaml:"user_agent" env:"STEPREC_USER_AGENT"`
	ExecPath     string `yaml:"exec_path" env:"STEPREC_CHROME"`
	WindowWidth  int    `yaml:"window_width" env-default:"1920"`
	WindowHeight int    `yaml:"window_height" env-default:"1080"`
	QueueSize    int    `yaml:"queue_size" env-default:"256"`
}

// A Handler processes capture events, usually a *capture.Capture.
type Handler interface {
	Handle(ctx context.Context, ev capture.Event) capture.Outcome
}

type Recorder struct {
	cfg    Config
	url    string
	events chan string
	states chan bool
	logger *slog.Logger
}

func NewRecorder(url string, cfg Config) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Recorder{
		cfg:    cfg,
		url:    url,
		events: make(chan string, cfg.QueueSize),
		states: make(chan bool, 1),
		logger: slog.Default().With(slog.String("component", "live"), slog.String("url", url)),
	}
}

// Observe is a session.Observer. It forwards the recording flag to the page
// so that the listener script knows when to suppress navigation.
func (r *Recorder) Observe(state session.State, _ int) {
	rec := state == session.Recording
	for {
		select {
		case r.states <- rec:
			return
		default:
		}
		// replace a stale value nobody has picked up yet
		select {
		case <-r.states:
		default:
		}
	}
}

func (r *Recorder) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", r.cfg.Headless),
	)
	if r.cfg.WindowWidth > 0 && r.cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(r.cfg.WindowWidth, r.cfg.WindowHeight))
	}
	if r.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(r.cfg.UserAgent))
	}
	if r.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.cfg.ExecPath))
	}
	return opts
}

// Run opens the page and feeds its events into h until ctx is done.
func (r *Recorder) Run(ctx context.Context, h Handler) error {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	chromedp.ListenTarget(taskCtx, func(ev any) {
		e, ok := ev.(*runtime.EventBindingCalled)
		if !ok || e.Name != bindingName {
			return
		}
		select {
		case r.events <- e.Payload:
		default:
			r.logger.Warn("event queue is full, dropping event")
		}
	})

	if err := chromedp.Run(taskCtx,
		runtime.AddBinding(bindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(recorderScript).Do(ctx)
			return err
		}),
		chromedp.Navigate(r.url),
	); err != nil {
		return fmt.Errorf("failed to open %s: %w", r.url, err)
	}
	r.logger.Info("recorder injected, press Escape in the page to finish")

	g, gctx := errgroup.WithContext(taskCtx)
	g.Go(func() error {
		return r.loop(gctx, h)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case rec := <-r.states:
				expr := fmt.Sprintf("window.__steprec && (window.__steprec.recording = %t)", rec)
				if err := chromedp.Run(gctx, chromedp.Evaluate(expr, nil)); err != nil {
					r.logger.Debug(fmt.Sprintf("failed to update recording flag: %v", err))
				}
			}
		}
	})
	return g.Wait()
}

func (r *Recorder) loop(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw := <-r.events:
			r.dispatch(ctx, h, raw)
		}
	}
}

// dispatch decodes one payload and hands it to h.
func (r *Recorder) dispatch(ctx context.Context, h Handler, raw string) capture.Outcome {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		r.logger.Warn(fmt.Sprintf("dropping malformed event: %v", err))
		return capture.Outcome{}
	}
	ev, err := p.Event()
	if err != nil {
		r.logger.Debug(fmt.Sprintf("dropping event: %v", err))
		return capture.Outcome{}
	}
	out := h.Handle(ctx, ev)
	if out.Preview != nil {
		r.logger.Debug(fmt.Sprintf("hover: %s (%s, unique=%t)", out.Preview.Locator, out.Preview.Strategy, out.Preview.Unique))
	}
	for _, st := range out.Recorded {
		r.logger.Info(fmt.Sprintf("step %d: %s %s", st.ID, st.Action, st.Locator), slog.String("frame", st.Frame()))
	}
	return out
}
