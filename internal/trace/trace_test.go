package trace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jakopako/steprec/internal/capture"
	"github.com/jakopako/steprec/internal/debounce"
	"github.com/jakopako/steprec/internal/dom"
	"github.com/jakopako/steprec/internal/locator"
	"github.com/jakopako/steprec/internal/session"
	"github.com/jakopako/steprec/internal/types"
)

const loginHTML = `<html><body>
<form name="login">
  <input name="username" type="text">
  <button type="submit">Sign In</button>
</form>
</body></html>`

const loginTrace = `
file: ./login.html
description: Login flow
events:
  - at: 0ms
    type: input
    target: //input[@name="username"]
    value: ali
  - at: 300ms
    type: input
    target: //input[@name="username"]
    value: alice
  - at: 2s
    type: click
    target: //button
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tr, err := Load(writeFile(t, "trace.yaml", loginTrace))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Description != "Login flow" || tr.File != "./login.html" {
		t.Errorf("unexpected trace header %+v", tr)
	}
	if len(tr.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(tr.Events))
	}
	if tr.Events[1].At != 300*time.Millisecond || tr.Events[2].At != 2*time.Second {
		t.Errorf("unexpected offsets %v %v", tr.Events[1].At, tr.Events[2].At)
	}
}

func TestLoadUnknownField(t *testing.T) {
	if _, err := Load(writeFile(t, "trace.yaml", "file: a.html\nevents:\n  - at: 0ms\n    type: click\n    target: //a\n    button: left\n")); err == nil {
		t.Error("expected an error for an unknown field")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		trace Trace
		want  []string
	}{
		{
			name:  "valid",
			trace: Trace{URL: "https://example.com", Events: []Event{{Type: "keydown", Key: "Escape"}}},
		},
		{
			name:  "no page",
			trace: Trace{},
			want:  []string{"either url or file is required"},
		},
		{
			name: "broken events",
			trace: Trace{File: "a.html", Events: []Event{
				{At: time.Second, Type: "click", Target: "//a"},
				{At: 0, Type: "scroll", Target: "//a"},
				{At: 2 * time.Second, Type: "hover"},
				{At: 3 * time.Second, Type: "click", Target: "//a", Modifiers: []string{"hyper"}},
			}},
			want: []string{
				`event 1: unknown type "scroll"`,
				"event 1: at 0s is before the previous event",
				"event 2: hover needs a target",
				`event 3: unknown modifier "hyper"`,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.trace.Validate()
			if len(tt.want) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected an error")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("expected error to contain %q, got %v", w, err)
				}
			}
		})
	}
}

type stepView struct {
	Action  types.Action
	Locator string
	Data    string
}

func TestPlay(t *testing.T) {
	doc, err := dom.ParseString(types.MainFrame, "", loginHTML)
	if err != nil {
		t.Fatal(err)
	}
	page := dom.NewPage(doc)
	clock := debounce.NewManualClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	sess := session.New(session.WithClock(clock.Now))
	if err := sess.Start(page); err != nil {
		t.Fatal(err)
	}
	c := capture.New(sess, locator.NewXPathResolver(), capture.WithClock(clock.Now, clock.AfterFunc))
	defer c.Close()

	tr, err := Load(writeFile(t, "trace.yaml", loginTrace+`  - at: 3s
    type: click
    target: //select
`))
	if err != nil {
		t.Fatal(err)
	}
	outcomes, err := NewPlayer(clock, 2*time.Second).Play(context.Background(), tr, page, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 4 {
		t.Errorf("expected an outcome per event, got %d", len(outcomes))
	}

	var got []stepView
	for _, st := range sess.Steps() {
		got = append(got, stepView{st.Action, st.Locator, st.Data})
	}
	want := []stepView{
		{types.ActionSendKeys, `//input[@name="username"]`, "alice"},
		{types.ActionClick, `//button[normalize-space(text())="Sign In"]`, ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected steps (-want +got):\n%s", diff)
	}
}

func TestPlayUnknownFrame(t *testing.T) {
	doc, err := dom.ParseString(types.MainFrame, "", loginHTML)
	if err != nil {
		t.Fatal(err)
	}
	p := NewPlayer(debounce.NewManualClock(time.Now()), 0)
	_, err = p.event(Event{Type: "click", Target: "//button", Frame: "payment"}, dom.NewPage(doc))
	if err == nil || !strings.Contains(err.Error(), "frame payment") {
		t.Errorf("expected a missing frame error, got %v", err)
	}
}

func TestPlayCancelled(t *testing.T) {
	doc, err := dom.ParseString(types.MainFrame, "", loginHTML)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := &Trace{File: "a.html", Events: []Event{{Type: "click", Target: "//button"}}}
	h := handlerFunc(func(context.Context, capture.Event) capture.Outcome {
		t.Error("no event expected after cancellation")
		return capture.Outcome{}
	})
	if _, err := NewPlayer(debounce.NewManualClock(time.Now()), 0).Play(ctx, tr, dom.NewPage(doc), h); err == nil {
		t.Error("expected the context error")
	}
}

type handlerFunc func(context.Context, capture.Event) capture.Outcome

func (f handlerFunc) Handle(ctx context.Context, ev capture.Event) capture.Outcome { return f(ctx, ev) }
