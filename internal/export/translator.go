// Package export turns recorded steps into Selenium/Cucumber artifacts and
// writes them to an output.
package export

import (
	"bytes"
	"cmp"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/antchfx/xpath"
	"github.com/hashicorp/go-multierror"
	"github.com/jakopako/steprec/internal/types"
)

// ErrNoSteps is returned when an export is requested for an empty recording.
var ErrNoSteps = errors.New("no steps recorded to export: start recording, interact with the page, pause or stop the recording and export again")

const (
	PageElementsFile    = "PageElements.java"
	StepDefinitionsFile = "StepDefinitions.java"
	FeatureFile         = "UITest.feature"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("export").
	Funcs(sprig.TxtFuncMap()).
	Funcs(template.FuncMap{
		"java":    EscapeJava,
		"javadoc": escapeJavadoc,
		"gherkin": EscapeGherkin,
	}).
	ParseFS(templateFS, "templates/*.tmpl"))

var artifacts = []struct {
	file     string
	template string
}{
	{PageElementsFile, "PageElements.java.tmpl"},
	{StepDefinitionsFile, "StepDefinitions.java.tmpl"},
	{FeatureFile, "UITest.feature.tmpl"},
}

// Artifact is a generated file.
type Artifact struct {
	Name    string
	Content []byte
}

// Skipped describes a step that was left out of the artifacts.
type Skipped struct {
	StepID int
	Reason string
}

// Result holds the artifacts that could be generated and the skipped steps.
type Result struct {
	Artifacts []Artifact
	Skipped   []Skipped
}

type element struct {
	Name    string
	Locator string
	Frame   string
}

type method struct {
	Name    string
	Element string
	Action  string
	Phrase  string
	Param   bool
}

type featureLine struct {
	Keyword string
	Text    string
	Comment bool
}

type model struct {
	Description string
	GeneratedAt time.Time
	StepCount   int
	Elements    []element
	Methods     []method
	Lines       []featureLine
}

type Translator struct {
	description string
	now         func() time.Time
	logger      *slog.Logger
}

type TranslatorOption func(*Translator)

// WithDescription sets the feature description. "UI Automation Test" is used if it is empty.
func WithDescription(d string) TranslatorOption {
	return func(t *Translator) { t.description = d }
}

func WithClock(now func() time.Time) TranslatorOption {
	return func(t *Translator) { t.now = now }
}

func WithLogger(l *slog.Logger) TranslatorOption {
	return func(t *Translator) { t.logger = l }
}

func NewTranslator(opts ...TranslatorOption) *Translator {
	t := &Translator{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(t)
	}
	t.logger = t.logger.With(slog.String("component", "translator"))
	return t
}

// Translate generates all artifacts for steps. An artifact that fails to
// render is left out and its error is part of the returned error; the
// others are still generated.
func (t *Translator) Translate(steps []types.Step) (Result, error) {
	var res Result
	if len(steps) == 0 {
		return res, ErrNoSteps
	}
	m, skipped := t.model(steps)
	res.Skipped = skipped

	var errs *multierror.Error
	for _, a := range artifacts {
		var buf bytes.Buffer
		if err := templates.ExecuteTemplate(&buf, a.template, m); err != nil {
			t.logger.Error(fmt.Sprintf("failed to generate %s: %v", a.file, err))
			errs = multierror.Append(errs, fmt.Errorf("failed to generate %s: %w", a.file, err))
			continue
		}
		res.Artifacts = append(res.Artifacts, Artifact{Name: a.file, Content: buf.Bytes()})
	}
	return res, errs.ErrorOrNil()
}

func (t *Translator) model(steps []types.Step) (model, []Skipped) {
	m := model{
		Description: t.description,
		GeneratedAt: t.now(),
		StepCount:   len(steps),
	}
	var skipped []Skipped
	names := newNamer()
	methods := map[string]bool{}
	for _, st := range steps {
		if reason := invalidLocator(st.Locator); reason != "" {
			t.logger.Warn(fmt.Sprintf("skipping step %d: %s", st.ID, reason))
			skipped = append(skipped, Skipped{StepID: st.ID, Reason: reason})
			m.Lines = append(m.Lines, featureLine{Text: fmt.Sprintf("step %d skipped: %s", st.ID, reason), Comment: true})
			continue
		}
		if !st.Action.Known() {
			t.logger.Warn(fmt.Sprintf("step %d has unknown action %q, generating a placeholder", st.ID, st.Action))
		}

		name, isNew := names.name(st)
		if isNew {
			m.Elements = append(m.Elements, element{Name: name, Locator: st.Locator, Frame: st.Frame()})
		}
		mn := methodName(st.Action, name)
		if !methods[mn] {
			methods[mn] = true
			m.Methods = append(m.Methods, method{
				Name:    mn,
				Element: name,
				Action:  st.Action.String(),
				Phrase:  phrase(st.Action, name, "{string}"),
				Param:   takesText(st.Action),
			})
		}

		keyword := "And"
		if !hasStep(m.Lines) {
			keyword = "When"
		}
		arg := `"` + EscapeGherkin(cmp.Or(st.Data, "{text}")) + `"`
		m.Lines = append(m.Lines, featureLine{Keyword: keyword, Text: phrase(st.Action, name, arg)})
	}
	return m, skipped
}

func hasStep(lines []featureLine) bool {
	for _, l := range lines {
		if !l.Comment {
			return true
		}
	}
	return false
}

func invalidLocator(loc string) string {
	if strings.TrimSpace(loc) == "" {
		return "empty locator"
	}
	if _, err := xpath.Compile(loc); err != nil {
		return fmt.Sprintf("invalid locator %q: %v", loc, err)
	}
	return ""
}

func takesText(a types.Action) bool {
	return a == types.ActionSendKeys || a == types.ActionVerify
}

// phrase returns the Gherkin step text for action on element. arg is the
// text argument of actions that take one.
func phrase(a types.Action, element, arg string) string {
	switch a {
	case types.ActionClick:
		return fmt.Sprintf("user clicks on %s", element)
	case types.ActionSendKeys:
		return fmt.Sprintf("user enters %s in %s", arg, element)
	case types.ActionClear:
		return fmt.Sprintf("user clears %s", element)
	case types.ActionHover:
		return fmt.Sprintf("user hovers over %s", element)
	case types.ActionDoubleClick:
		return fmt.Sprintf("user double clicks on %s", element)
	case types.ActionSave:
		return fmt.Sprintf("user saves the value of %s", element)
	case types.ActionVerify:
		return fmt.Sprintf("user verifies %s in %s", arg, element)
	case types.ActionTab:
		return fmt.Sprintf("user presses tab on %s", element)
	case types.ActionPressEnter:
		return fmt.Sprintf("user presses enter on %s", element)
	case types.ActionScrollToView:
		return fmt.Sprintf("user scrolls to %s", element)
	default:
		return fmt.Sprintf("user performs %s on %s", nonIdent.ReplaceAllString(a.String(), "_"), element)
	}
}

// EscapeJava escapes s for use inside a Java string literal.
func EscapeJava(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	s = strings.ReplaceAll(s, "\t", `\t`)
	return s
}

func escapeJavadoc(s string) string {
	return strings.ReplaceAll(s, "*/", "*&#47;")
}

// EscapeGherkin escapes s for use inside a quoted Gherkin step argument.
// Line breaks are folded into spaces since a step is a single line.
func EscapeGherkin(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}
