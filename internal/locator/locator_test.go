package locator

import (
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/google/go-cmp/cmp"
	"github.com/jakopako/steprec/internal/dom"
	"github.com/jakopako/steprec/internal/types"
	"golang.org/x/net/html"
)

const loginHTML = `<html><body>
<form name="login">
  <input name="username" type="text">
  <input name="password" type="password">
  <button type="submit">Sign In</button>
</form>
</body></html>`

const volatileHTML = `<html><body><div>
<button data-id="48213749" aria-label="Save">💾</button>
<button data-id="48213750" aria-label="Cancel">x</button>
</div></body></html>`

const siblingsHTML = `<html><body><div></div><div></div></body></html>`

const labelHTML = `<html><body>
<label>Email <input type="text"></label>
<label for="phone-field">Phone</label><input id="phone-field" type="text">
<div><span>Account Name</span><input type="text"></div>
</body></html>`

const formsHTML = `<html><body>
<form name="search"><input type="search" placeholder="Find"></form>
<form name="filter"><input type="search" placeholder="Find"></form>
</body></html>`

const structuralHTML = `<html><body>
<div data-testid="left"><span></span></div>
<div data-testid="right"><span></span></div>
</body></html>`

const lookupHTML = `<html><body>
<div data-field-label="Account"><input type="text" class="slds-input"></div>
<div data-field-label="Contact"><input type="text" class="slds-input"></div>
</body></html>`

func parse(t *testing.T, s string) *dom.Document {
	t.Helper()
	d, err := dom.ParseString(types.MainFrame, "", s)
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	return d
}

func findOne(t *testing.T, d *dom.Document, expr string) *html.Node {
	t.Helper()
	n := htmlquery.FindOne(d.Root, expr)
	if n == nil {
		t.Fatalf("fixture has no node matching %s", expr)
	}
	return n
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name         string
		html         string
		target       string
		wantLocator  string
		wantStrategy string
	}{
		{
			name:         "name attribute",
			html:         loginHTML,
			target:       "//input[1]",
			wantLocator:  `//input[@name="username"]`,
			wantStrategy: StrategyName,
		},
		{
			name:         "exact text",
			html:         loginHTML,
			target:       "//button",
			wantLocator:  `//button[normalize-space(text())="Sign In"]`,
			wantStrategy: StrategyText,
		},
		{
			name:         "text after an icon",
			html:         "<html><body><button>\n  <svg></svg> Save</button><button>Cancel</button></body></html>",
			target:       "//button[1]",
			wantLocator:  `//button[normalize-space(text()[normalize-space()][1])="Save"]`,
			wantStrategy: StrategyText,
		},
		{
			name:         "document title is not a label",
			html:         `<html><head><title>Login</title></head>` + loginHTML[len("<html>"):],
			target:       "//input[1]",
			wantLocator:  `//input[@name="username"]`,
			wantStrategy: StrategyName,
		},
		{
			name:         "script text is not a label",
			html:         `<html><body><script>var cfg = {a: 1}</script><div><input name="username"></div></body></html>`,
			target:       "//input",
			wantLocator:  `//input[@name="username"]`,
			wantStrategy: StrategyName,
		},
		{
			name:         "enclosing label",
			html:         labelHTML,
			target:       "//label/input",
			wantLocator:  `//label[normalize-space(text())="Email"]//input`,
			wantStrategy: StrategyLabel,
		},
		{
			name:         "label referencing id",
			html:         labelHTML,
			target:       `//input[@id]`,
			wantLocator:  `//input[@id=//label[normalize-space(text())="Phone"]/@for]`,
			wantStrategy: StrategyLabel,
		},
		{
			name:         "preceding text as label",
			html:         labelHTML,
			target:       "//div/input",
			wantLocator:  `(//text()[normalize-space()="Account Name"]/following::input)[1]`,
			wantStrategy: StrategyLabel,
		},
		{
			name:         "curated attribute",
			html:         volatileHTML,
			target:       "//button[1]",
			wantLocator:  `//button[@aria-label="Save"]`,
			wantStrategy: StrategyAttribute,
		},
		{
			name:         "lookup widget",
			html:         lookupHTML,
			target:       "//div[1]/input",
			wantLocator:  `//div[@data-field-label="Account"]//input`,
			wantStrategy: StrategyAttribute,
		},
		{
			name:         "combination scoped by form",
			html:         formsHTML,
			target:       "//form[2]/input",
			wantLocator:  `//form[@name="filter"]//input[@placeholder="Find" and @type="search"]`,
			wantStrategy: StrategyCombination,
		},
		{
			name:         "structural",
			html:         structuralHTML,
			target:       "//div[2]/span",
			wantLocator:  `//body/div[@data-testid="right"]/span`,
			wantStrategy: StrategyStructural,
		},
		{
			name:         "positional",
			html:         siblingsHTML,
			target:       "//div[2]",
			wantLocator:  `//div[2]`,
			wantStrategy: StrategyPositional,
		},
	}
	r := NewXPathResolver()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := parse(t, tc.html)
			el := findOne(t, d, tc.target)
			got := r.Resolve(d, el)
			if got.Locator != tc.wantLocator {
				t.Errorf("locator = %s, want %s", got.Locator, tc.wantLocator)
			}
			if got.Strategy != tc.wantStrategy {
				t.Errorf("strategy = %s, want %s", got.Strategy, tc.wantStrategy)
			}
			if !got.Unique {
				t.Error("expected a unique locator")
			}
			if got.FrameID != types.MainFrame {
				t.Errorf("frame = %s, want %s", got.FrameID, types.MainFrame)
			}
			// the locator has to select exactly the target
			matches := htmlquery.Find(d.Root, got.Locator)
			if len(matches) != 1 || matches[0] != el {
				t.Errorf("locator %s selects %d node(s), want exactly the target", got.Locator, len(matches))
			}
		})
	}
}

func TestResolveNeverEmbedsVolatileValues(t *testing.T) {
	d := parse(t, volatileHTML)
	r := NewXPathResolver()
	for _, b := range htmlquery.Find(d.Root, "//button") {
		got := r.Resolve(d, b)
		if strings.Contains(got.Locator, "48213749") || strings.Contains(got.Locator, "48213750") {
			t.Errorf("locator %s embeds a record id", got.Locator)
		}
	}
	save := r.Resolve(d, findOne(t, d, "//button[1]"))
	if !strings.Contains(save.Locator, `"Save"`) {
		t.Errorf("expected the locator to use the aria-label, got %s", save.Locator)
	}
}

func TestResolvePositionalSiblings(t *testing.T) {
	d := parse(t, siblingsHTML)
	r := NewXPathResolver()
	for i, div := range htmlquery.Find(d.Root, "//div") {
		got := r.Resolve(d, div)
		want := []string{"//div[1]", "//div[2]"}[i]
		if got.Locator != want {
			t.Errorf("div %d: locator = %s, want %s", i+1, got.Locator, want)
		}
	}
}

func TestResolveInFrame(t *testing.T) {
	main := parse(t, `<html><body><p><button>Go</button></p><p><button>Go</button></p></body></html>`)
	frame, err := dom.ParseString("search", "", `<html><body><button>Go</button></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	r := NewXPathResolver()
	got := r.Resolve(frame, findOne(t, frame, "//button"))
	if got.Locator != `//button[normalize-space(text())="Go"]` || got.FrameID != "search" || !got.Unique {
		t.Errorf("unexpected result for the frame button: %+v", got)
	}
	v := NewXPathVerifier(nil)
	if v.Unique(main, got.Locator, nil) {
		t.Error("the frame locator must not be unique in the main document")
	}
}

func TestResolveFallback(t *testing.T) {
	tests := []struct {
		name         string
		html         string
		target       string
		wantLocator  string
		wantStrategy string
		wantUnique   bool
	}{
		{
			name:         "composite",
			html:         `<html><body><button role="button" aria-label="Close">X</button><button>Open</button></body></html>`,
			target:       "//button[1]",
			wantLocator:  `//button[@role="button" and @aria-label="Close"]`,
			wantStrategy: StrategyFallbackComposite,
			wantUnique:   true,
		},
		{
			name:         "composite with text",
			html:         `<html><body><a title="Help">Help me</a></body></html>`,
			target:       "//a",
			wantLocator:  `//a[@title="Help" and contains(text(),"Help me")]`,
			wantStrategy: StrategyFallbackComposite,
			wantUnique:   true,
		},
		{
			name:         "positional",
			html:         siblingsHTML,
			target:       "//div[1]",
			wantLocator:  `//div[1]`,
			wantStrategy: StrategyFallbackPositional,
			wantUnique:   true,
		},
	}
	r := NewXPathResolver(WithStrategies([]Strategy{}))
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := parse(t, tc.html)
			got := r.Resolve(d, findOne(t, d, tc.target))
			want := Result{Locator: tc.wantLocator, FrameID: types.MainFrame, Strategy: tc.wantStrategy, Unique: tc.wantUnique}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("unexpected result (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveRecoversFromPanickingStrategy(t *testing.T) {
	d := parse(t, siblingsHTML)
	broken := Strategy{Name: "broken", Candidates: func(*html.Node, Attributes) []string {
		panic("boom")
	}}
	r := NewXPathResolver(WithStrategies([]Strategy{broken}))
	got := r.Resolve(d, findOne(t, d, "//div[2]"))
	if got.Locator != "//div[2]" || got.Strategy != StrategyFallbackPositional {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestResolveDisabledStrategies(t *testing.T) {
	d := parse(t, loginHTML)
	r := NewXPathResolver(WithConfig(ResolverConfig{DisabledStrategies: []string{StrategyName}}))
	got := r.Resolve(d, findOne(t, d, "//input[1]"))
	want := `//input[@name="username" and @type="text"]`
	if got.Locator != want || got.Strategy != StrategyCombination {
		t.Errorf("got %s (%s), want %s (%s)", got.Locator, got.Strategy, want, StrategyCombination)
	}
}

func TestVerifier(t *testing.T) {
	d := parse(t, loginHTML)
	username := findOne(t, d, "//input[1]")
	v := NewXPathVerifier(nil)
	tests := []struct {
		name   string
		expr   string
		target *html.Node
		want   bool
	}{
		{"unique", `//input[@name="username"]`, username, true},
		{"unique without target", `//button`, nil, true},
		{"multiple", `//input`, nil, false},
		{"none", `//select`, nil, false},
		{"other node", `//input[@name="password"]`, username, false},
		{"malformed", `//input[@name=`, nil, false},
		{"empty", ``, nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := v.Unique(d, tc.expr, tc.target); got != tc.want {
				t.Errorf("Unique(%q) = %v, want %v", tc.expr, got, tc.want)
			}
		})
	}
}

func TestExtractAttributes(t *testing.T) {
	d := parse(t, `<html><body><form name="login">
<div data-field-label="User" aria-label="User section">
<input id="x1" class="a" data-id="123" data-testid="user" name="username" style="color:red" onclick="go()">
</div></form></body></html>`)
	got := ExtractAttributes(findOne(t, d, "//input"))
	want := Attributes{
		"data-testid":         "user",
		"name":                "username",
		TagNameKey:            "input",
		"field-label-context": "User",
		"section-context":     "User section",
		"form-context":        "login",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected attributes (-want +got):\n%s", diff)
	}
}

func TestFilterAttributes(t *testing.T) {
	in := Attributes{
		"aria-label":  "Save",
		"data-value":  "48213749",
		"data-hash":   "a1b2c3d4e5",
		"data-token":  "session-abc",
		"data-year":   "v2024",
		"data-flag":   "x",
		"recordid":    "Account",
		"placeholder": strings.Repeat("a", 100),
		"role":        "button",
	}
	got := FilterAttributes(in)
	want := Attributes{"aria-label": "Save", "role": "button"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected filtered attributes (-want +got):\n%s", diff)
	}
}

func TestIsStableValue(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"Save", true},
		{"Account Name", true},
		{"12", false},
		{"0012x000", false},
		{"deadbeef", false},
		{"DeadBeef01", false},
		{"sessionId", false},
		{"created 2024", false},
		{"x", false},
		{"", false},
		{"Step 12", true},
		{strings.Repeat("x", 99), true},
		{strings.Repeat("x", 100), false},
	}
	for _, tc := range tests {
		if got := IsStableValue(tc.value); got != tc.want {
			t.Errorf("IsStableValue(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Sign In", `"Sign In"`},
		{"  Sign \n  In ", `"Sign In"`},
		{`Say "hi"`, `'Say "hi"'`},
		{`It's "ok"`, `concat("It's ", '"', "ok", '"')`},
		{"", `""`},
	}
	for _, tc := range tests {
		if got := Literal(tc.in); got != tc.want {
			t.Errorf("Literal(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
	// every literal has to be usable in an expression
	d := parse(t, `<html><body><p>It's "ok"</p></body></html>`)
	v := NewXPathVerifier(nil)
	if !v.Unique(d, "//p[normalize-space(text())="+Literal(`It's "ok"`)+"]", nil) {
		t.Error("concat literal did not match")
	}
}
