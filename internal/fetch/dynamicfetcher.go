package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/jakopako/steprec/internal/log"
	"github.com/jakopako/steprec/internal/types"
	"github.com/jakopako/steprec/internal/utils"
)

// The DynamicFetcher renders js and can replay recorded steps before
// returning the page content.
type DynamicFetcher struct {
	*FetcherConfig
	allocContext context.Context
	cancelAlloc  context.CancelFunc
}

func NewDynamicFetcher(fc *FetcherConfig) *DynamicFetcher {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(1920, 1080), // init with a desktop view (sometimes pages look different on mobile, eg buttons are missing)
	)
	if fc.UserAgent != "" {
		opts = append(opts,
			chromedp.UserAgent(fc.UserAgent))
	}
	allocContext, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	d := &DynamicFetcher{
		FetcherConfig: fc,
		allocContext:  allocContext,
		cancelAlloc:   cancelAlloc,
	}
	if d.PageLoadWaitMS == 0 {
		d.PageLoadWaitMS = 2000 // default
	}
	if d.StepDelayMS == 0 {
		d.StepDelayMS = 500
	}
	return d
}

func (d *DynamicFetcher) Cancel() {
	d.cancelAlloc()
}

func (d *DynamicFetcher) Fetch(ctx context.Context, urlStr string, opts FetchOpts) (string, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("fetcher", "dynamic"), slog.String("url", urlStr))
	logger.Debug("fetching page", slog.String("user-agent", d.UserAgent))
	cctx, cancel := chromedp.NewContext(d.allocContext)
	defer cancel()
	// stop the browser tab when the caller gives up
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	actions := []chromedp.Action{}

	// log chrome version in debug mode
	if log.Debug {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			protocolVersion, product, revision, userAgent, jsVersion, err := browser.GetVersion().Do(ctx)
			if err != nil {
				logger.Warn("failed to get chrome version", slog.String("err", err.Error()))
				return nil
			}
			logger.Debug(fmt.Sprintf("chrome version: protocolVersion=%s, product=%s, revision=%s, userAgent=%s, jsVersion=%s",
				protocolVersion, product, revision, userAgent, jsVersion))
			return nil
		}))
	}

	var body string
	sleepTime := time.Duration(d.PageLoadWaitMS) * time.Millisecond
	actions = append(actions,
		chromedp.Navigate(urlStr),
		chromedp.Sleep(sleepTime),
	)
	logger.Debug(fmt.Sprintf("appended chrome actions: Navigate, Sleep(%v)", sleepTime))
	delay := time.Duration(d.StepDelayMS) * time.Millisecond
	for _, s := range opts.Steps {
		a := stepAction(s, logger)
		if a == nil {
			continue
		}
		actions = append(actions, a, chromedp.Sleep(delay))
		logger.Debug(fmt.Sprintf("appended chrome actions for step %d (%s), Sleep(%v)", s.ID, s.Action, delay))
	}
	actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		body, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))

	if log.Debug {
		// ensure debug directory exists
		if d.DebugDir != "" {
			err := os.MkdirAll(d.DebugDir, os.ModePerm)
			if err != nil {
				return "", fmt.Errorf("failed to create debug directory: %v", err)
			}
		}

		host := "page"
		if u, err := url.Parse(urlStr); err == nil && u.Host != "" {
			host = u.Host
		}
		var buf []byte
		r, err := utils.RandomString(host)
		if err != nil {
			return "", err
		}
		filename := path.Join(d.DebugDir, fmt.Sprintf("%s.png", r))
		actions = append(actions, chromedp.CaptureScreenshot(&buf))
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			logger.Debug(fmt.Sprintf("writing screenshot to file %s", filename))
			return os.WriteFile(filename, buf, 0644)
		}))
		logger.Debug("appended chrome actions: CaptureScreenshot, ActionFunc (save screenshot)")
	}

	// run task list
	if err := chromedp.Run(cctx, actions...); err != nil {
		return "", err
	}

	if log.Debug {
		writeHTMLToFile(ctx, urlStr, body, d.DebugDir)
	}
	return body, nil
}

// stepAction translates a recorded step into a chrome action. Steps that
// cannot be replayed return nil.
func stepAction(s types.Step, logger *slog.Logger) chromedp.Action {
	if s.Frame() != types.MainFrame {
		logger.Warn(fmt.Sprintf("step %d: replaying steps inside frame %s is not supported", s.ID, s.Frame()))
		return nil
	}
	if s.Locator == "" {
		logger.Warn(fmt.Sprintf("step %d has no locator", s.ID))
		return nil
	}
	switch s.Action {
	case types.ActionClick:
		return chromedp.Click(s.Locator, chromedp.BySearch)
	case types.ActionDoubleClick:
		return chromedp.DoubleClick(s.Locator, chromedp.BySearch)
	case types.ActionSendKeys:
		return chromedp.Tasks{
			chromedp.SetValue(s.Locator, "", chromedp.BySearch),
			chromedp.SendKeys(s.Locator, s.Data, chromedp.BySearch),
		}
	case types.ActionClear:
		return chromedp.SetValue(s.Locator, "", chromedp.BySearch)
	case types.ActionHover, types.ActionScrollToView:
		return chromedp.ScrollIntoView(s.Locator, chromedp.BySearch)
	case types.ActionTab:
		return chromedp.KeyEvent(kb.Tab)
	case types.ActionPressEnter:
		return chromedp.KeyEvent(kb.Enter)
	case types.ActionSave, types.ActionVerify:
		return chromedp.ActionFunc(func(ctx context.Context) error {
			var text string
			if err := chromedp.Text(s.Locator, &text, chromedp.BySearch).Do(ctx); err != nil {
				return err
			}
			logger.Debug(fmt.Sprintf("step %d (%s) read %q", s.ID, s.Action, text))
			return nil
		})
	default:
		logger.Warn(fmt.Sprintf("step %d: unknown action %s, skipping", s.ID, s.Action))
		return nil
	}
}
