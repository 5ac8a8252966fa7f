/*
steprec records browser interactions as test steps with stable XPath locators
and exports them as Selenium/Cucumber artifacts.
*/
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/antchfx/htmlquery"
	"github.com/google/uuid"
	"github.com/jakopako/steprec/internal/capture"
	"github.com/jakopako/steprec/internal/config"
	"github.com/jakopako/steprec/internal/control"
	"github.com/jakopako/steprec/internal/debounce"
	"github.com/jakopako/steprec/internal/dom"
	"github.com/jakopako/steprec/internal/export"
	"github.com/jakopako/steprec/internal/fetch"
	"github.com/jakopako/steprec/internal/live"
	"github.com/jakopako/steprec/internal/locator"
	"github.com/jakopako/steprec/internal/log"
	"github.com/jakopako/steprec/internal/session"
	"github.com/jakopako/steprec/internal/store"
	"github.com/jakopako/steprec/internal/trace"
	"github.com/jakopako/steprec/internal/types"
	"github.com/miekg/king"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

const name = "steprec"

type VersionFlag string

func (v VersionFlag) Decode(_ *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                       { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

type cli struct {
	Version VersionFlag `short:"v" long:"version" help:"Print the version and exit."`
	Debug   bool        `short:"d" long:"debug" help:"Set log level to 'debug'."`
	Config  string      `short:"c" long:"config" default:"./steprec.yaml" help:"The configuration file. Defaults and environment variables are used if it does not exist." completion:"<file>"`

	Resolve ResolveCmd `cmd:"" help:"Print the locators generated for the elements matched by an XPath expression."`
	Replay  ReplayCmd  `cmd:"" help:"Replay an interaction trace, record its steps and export them."`
	Record  RecordCmd  `cmd:"" help:"Open a browser and record the interactions until the interrupt key is pressed."`
	Export  ExportCmd  `cmd:"" help:"Export a stored recording."`
	Steps   StepsCmd   `cmd:"" help:"List and edit the steps of a stored recording."`

	Completion CompletionCommand `cmd:"" help:"Generate autocompletion file."`
}

type ShellType string

const (
	BASH ShellType = "bash"
	ZSH  ShellType = "zsh"
	FISH ShellType = "fish"
)

var shellTypes = []string{string(BASH), string(ZSH), string(FISH)}

type CompletionCommand struct {
	Shell ShellType `short:"s" help:"The shell that you want to create the autocompletion file for." required:"" enum:"bash,zsh,fish"`
}

func (acc *CompletionCommand) Run() error {
	parser := kong.Must(&cli{}, kong.Name(name))

	switch acc.Shell {
	case BASH:
		b := &king.Bash{}
		b.Completion(parser.Model.Node, name)
		return b.Write()
	case ZSH:
		z := &king.Zsh{}
		z.Completion(parser.Model.Node, name)
		return z.Write()
	case FISH:
		f := &king.Fish{}
		f.Completion(parser.Model.Node, name)
		return f.Write()
	default:
		return fmt.Errorf("shell type not supported: %s. Must be one of [%s]", acc.Shell, strings.Join(shellTypes, ", "))
	}
}

// SnapshotFlags select a stored recording.
type SnapshotFlags struct {
	Key string `short:"k" required:"" help:"The key the recording is stored under."`
}

type ResolveCmd struct {
	URL       string `short:"u" long:"url" help:"The page to load."`
	File      string `short:"f" long:"file" help:"A local html file to load instead of a URL." type:"existingfile" completion:"<file>"`
	Target    string `short:"t" long:"target" required:"" help:"An XPath expression selecting the elements to resolve."`
	Frame     string `long:"frame" default:"main" help:"The id of the frame to evaluate the target in."`
	StepsFrom string `long:"steps-from" help:"Replay the steps of this stored recording before reading the page (dynamic fetcher only)."`
}

func (r *ResolveCmd) Validate() error {
	if (r.URL == "") == (r.File == "") {
		return errors.New("exactly one of --url and --file is required")
	}
	return nil
}

func (r *ResolveCmd) Run(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()
	ctx = log.ContextWithLogger(ctx, slog.With(slog.String("target", r.Target)))

	var steps []types.Step
	if r.StepsFrom != "" {
		st, err := store.NewStore(ctx, &cfg.Store)
		if err != nil {
			slog.Error(err.Error())
			return err
		}
		defer st.Close()
		snap, err := session.NewPersister(st).LoadSnapshot(ctx, r.StepsFrom)
		if err != nil {
			slog.Error(fmt.Sprintf("error loading recording %s: %v", r.StepsFrom, err))
			return err
		}
		steps = snap.Steps
	}

	page, err := loadPage(ctx, cfg, r.URL, r.File, steps)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	doc, ok := page.Frame(r.Frame)
	if !ok {
		err := fmt.Errorf("frame %s not found, available frames: %v", r.Frame, page.FrameIDs())
		slog.Error(err.Error())
		return err
	}
	nodes, err := htmlquery.QueryAll(doc.Root, r.Target)
	if err != nil {
		slog.Error(fmt.Sprintf("invalid target expression: %v", err))
		return err
	}
	if len(nodes) == 0 {
		err := fmt.Errorf("no element matches %s", r.Target)
		slog.Error(err.Error())
		return err
	}

	resolver := locator.NewXPathResolver(locator.WithConfig(cfg.Resolver))
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Element", "Locator", "Strategy", "Unique", "Frame"})
	for i, n := range nodes {
		res := resolver.Resolve(doc, n)
		row := []string{strconv.Itoa(i + 1), dom.TagName(n), res.Locator, res.Strategy, strconv.FormatBool(res.Unique), res.FrameID}
		if !res.Unique {
			colors := make([]tablewriter.Colors, len(row))
			for j := range colors {
				colors[j] = tablewriter.Colors{tablewriter.Normal, tablewriter.FgYellowColor}
			}
			table.Rich(row, colors)
		} else {
			table.Append(row)
		}
	}
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.Render()
	return nil
}

type ReplayCmd struct {
	Trace       string `short:"t" long:"trace" required:"" type:"existingfile" help:"The trace file to replay." completion:"<file>"`
	Key         string `short:"k" long:"key" help:"The key to store the recording under. Defaults to the name of the trace file."`
	Description string `long:"description" help:"The feature description. Overrides the one of the trace."`
	Out         string `short:"O" long:"out" help:"The directory the artifacts are written to."`
	Stdout      bool   `short:"o" long:"stdout" help:"If set to true the artifacts will be written to stdout despite any other writer configuration."`
}

func (r *ReplayCmd) Run(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()

	tr, err := trace.Load(r.Trace)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	ctx = log.ContextWithLogger(ctx, slog.With(slog.String("trace", r.Trace)))
	file := tr.File
	if file != "" && !filepath.IsAbs(file) {
		file = filepath.Join(filepath.Dir(r.Trace), file)
	}
	page, err := loadPage(ctx, cfg, tr.URL, file, nil)
	if err != nil {
		slog.Error(err.Error())
		return err
	}

	st, err := store.NewStore(ctx, &cfg.Store)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	defer st.Close()

	exp, err := newExporter(cfg, cmp.Or(r.Description, tr.Description), r.Out, r.Stdout)
	if err != nil {
		slog.Error(err.Error())
		return err
	}

	key := cmp.Or(r.Key, trimExt(filepath.Base(r.Trace)))
	clock := debounce.NewManualClock(time.Now())
	sess := session.New(session.WithClock(clock.Now))
	pe := &persistingExporter{exporter: exp, persister: session.NewPersister(st), key: key, session: sess}
	c := capture.New(sess, locator.NewXPathResolver(locator.WithConfig(cfg.Resolver)),
		capture.WithConfig(cfg.Capture),
		capture.WithClock(clock.Now, clock.AfterFunc),
		capture.WithExporter(pe),
	)
	defer c.Close()

	if err := sess.Start(page); err != nil {
		return err
	}
	if _, err := trace.NewPlayer(clock, cfg.Capture.Debounce).Play(ctx, tr, page, c); err != nil {
		slog.Error(fmt.Sprintf("replay aborted: %v", err))
		return err
	}
	if sess.State() != session.Idle {
		// a trace without the interrupt key is finished the same way
		c.Handle(ctx, capture.Event{Type: capture.EventKeyDown, Key: cfg.Capture.InterruptKey})
	}
	if pe.err != nil {
		return pe.err
	}
	slog.Info(fmt.Sprintf("replayed %d event(s), recorded %d step(s) under key %s", len(tr.Events), pe.exported, key))
	return nil
}

type RecordCmd struct {
	URL     string `short:"u" long:"url" required:"" help:"The page to record on."`
	Key     string `short:"k" long:"key" help:"The key to store the recording under. A recent recording under the same key is continued."`
	Control string `long:"control" help:"The address of the control channel. Overrides the configured one."`
}

func (r *RecordCmd) Run(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st, err := store.NewStore(ctx, &cfg.Store)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	defer st.Close()
	exp, err := newExporter(cfg, "", "", false)
	if err != nil {
		slog.Error(err.Error())
		return err
	}

	key := cmp.Or(r.Key, uuid.NewString())
	logger := slog.With(slog.String("key", key))
	persister := session.NewPersister(st)
	rec := live.NewRecorder(r.URL, cfg.Browser)

	var sess *session.Session
	save := func(state session.State, _ int) {
		// an interrupted recording stays stored until the next one starts
		if sess == nil || state == session.Idle {
			return
		}
		if err := persister.Save(ctx, key, sess); err != nil {
			logger.Warn(err.Error())
		}
	}
	sess, restored := persister.Load(ctx, key, session.WithObserver(rec.Observe), session.WithObserver(save))
	switch {
	case !restored || sess.State() == session.Idle:
		err = sess.Start(nil)
	case sess.State() == session.Paused:
		logger.Info(fmt.Sprintf("continuing recording with %d step(s)", sess.StepCount()))
		err = sess.Resume()
	}
	if err != nil {
		return err
	}

	c := capture.New(sess, locator.NewXPathResolver(locator.WithConfig(cfg.Resolver)),
		capture.WithConfig(cfg.Capture),
		capture.WithExporter(&persistingExporter{exporter: exp, persister: persister, key: key, session: sess}),
		capture.WithInterruptHook(cancel),
	)
	defer c.Close()

	srv := control.NewServer(sess, control.WithOriginPatterns(cfg.Control.OriginPatterns))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rec.Run(gctx, c)
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cmp.Or(r.Control, cfg.Control.Addr))
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(err.Error())
		return err
	}
	logger.Info("recording finished")
	return nil
}

type ExportCmd struct {
	SnapshotFlags `embed:""`
	Description   string `long:"description" help:"The feature description."`
	Out           string `short:"O" long:"out" help:"The directory the artifacts are written to."`
	Stdout        bool   `short:"o" long:"stdout" help:"If set to true the artifacts will be written to stdout despite any other writer configuration."`
}

func (e *ExportCmd) Run(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()

	snap, err := loadSnapshot(ctx, cfg, e.Key)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	exp, err := newExporter(cfg, e.Description, e.Out, e.Stdout)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	rep, err := exp.ExportReport(ctx, snap.Steps)
	for _, s := range rep.Skipped {
		slog.Warn(fmt.Sprintf("step %d skipped: %s", s.StepID, s.Reason))
	}
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	slog.Info(fmt.Sprintf("wrote %v", rep.Written))
	return nil
}

// persistingExporter stores the recording before exporting it, so that it
// survives the reset that follows an export.
type persistingExporter struct {
	exporter  capture.Exporter
	persister *session.Persister
	key       string
	session   *session.Session
	exported  int
	err       error
}

func (p *persistingExporter) Export(ctx context.Context, steps []types.Step) error {
	if err := p.persister.Save(ctx, p.key, p.session); err != nil {
		slog.Warn(err.Error())
	}
	p.exported = len(steps)
	p.err = p.exporter.Export(ctx, steps)
	return p.err
}

func newExporter(cfg *config.Config, description, out string, stdout bool) (*export.Exporter, error) {
	wc := cfg.Export.Writer
	if out != "" {
		wc.Dir = out
		wc.Type = export.FILE_WRITER_TYPE
	}
	if stdout {
		wc.Type = export.STDOUT_WRITER_TYPE
	}
	w, err := export.NewWriter(&wc)
	if err != nil {
		return nil, err
	}
	t := export.NewTranslator(export.WithDescription(cmp.Or(description, cfg.Export.Description)))
	return export.NewExporter(t, w), nil
}

// loadPage reads the page from file or fetches it from url and registers
// its accessible frames.
func loadPage(ctx context.Context, cfg *config.Config, url, file string, steps []types.Step) (*dom.Page, error) {
	f, err := fetch.NewFetcher(&cfg.Fetcher)
	if err != nil {
		return nil, err
	}
	defer f.Cancel()

	var content, docURL string
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		abs, err := filepath.Abs(file)
		if err != nil {
			return nil, err
		}
		content, docURL = string(b), "file://"+filepath.ToSlash(abs)
	} else {
		if content, err = f.Fetch(ctx, url, fetch.FetchOpts{Steps: steps}); err != nil {
			return nil, fmt.Errorf("error fetching %s: %w", url, err)
		}
		docURL = url
	}
	doc, err := dom.ParseString(types.MainFrame, docURL, content)
	if err != nil {
		return nil, err
	}
	page := dom.NewPage(doc)
	dom.DiscoverFrames(ctx, page, f)
	return page, nil
}

func loadSnapshot(ctx context.Context, cfg *config.Config, key string) (session.Snapshot, error) {
	st, err := store.NewStore(ctx, &cfg.Store)
	if err != nil {
		return session.Snapshot{}, err
	}
	defer st.Close()
	snap, err := session.NewPersister(st).LoadSnapshot(ctx, key)
	if err != nil {
		return snap, fmt.Errorf("error loading recording %s: %w", key, err)
	}
	return snap, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}

func getVersion() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if ok {
		if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
			return buildInfo.Main.Version
		}
	}
	return version
}

func main() {
	cli := cli{
		Version: VersionFlag(getVersion()),
	}

	ctx := kong.Parse(&cli,
		kong.Name(name),
		kong.Vars{
			"version": string(cli.Version),
		})

	cfg, err := config.NewConfig(cli.Config)
	ctx.FatalIfErrorf(err)

	log.Debug = cli.Debug
	log.InitializeDefaultLogger(&cfg.Log)

	err = ctx.Run(cfg)
	ctx.FatalIfErrorf(err)
}
