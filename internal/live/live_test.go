package live

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/google/go-cmp/cmp"
	"github.com/jakopako/steprec/internal/capture"
	"github.com/jakopako/steprec/internal/dom"
	"github.com/jakopako/steprec/internal/locator"
	"github.com/jakopako/steprec/internal/session"
	"github.com/jakopako/steprec/internal/types"
)

const pageHTML = `<html><head></head><body>
<form name="login">
  <input name="username" type="text">
  <button type="submit">Sign In</button>
</form>
</body></html>`

// pathTo returns the element-index path of the first node matching expr,
// computed the same way as the injected script.
func pathTo(t *testing.T, expr string) []int {
	t.Helper()
	doc, err := dom.ParseString(types.MainFrame, "", pageHTML)
	if err != nil {
		t.Fatal(err)
	}
	n := htmlquery.FindOne(doc.Root, expr)
	if n == nil {
		t.Fatalf("no node for %s", expr)
	}
	return dom.PathOf(n)
}

func TestPayloadEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		wantTag string
		wantErr error
	}{
		{
			name:    "input",
			payload: Payload{Type: "input", HTML: pageHTML, Path: pathTo(t, "//input"), Tag: "input", Value: "alice"},
			wantTag: "input",
		},
		{
			name:    "frame",
			payload: Payload{Type: "click", Frame: "login", HTML: pageHTML, Path: pathTo(t, "//button"), Tag: "button"},
			wantTag: "button",
		},
		{
			name:    "stale path",
			payload: Payload{Type: "click", HTML: pageHTML, Path: []int{0, 1, 9}, Tag: "button"},
			wantErr: errStaleSnapshot,
		},
		{
			name:    "tag mismatch",
			payload: Payload{Type: "click", HTML: pageHTML, Path: pathTo(t, "//input"), Tag: "button"},
			wantErr: errStaleSnapshot,
		},
		{
			name:    "no target",
			payload: Payload{Type: "keydown", Key: "Escape", HTML: pageHTML},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := tt.payload.Event()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := dom.TagName(ev.Target); got != tt.wantTag {
				t.Errorf("expected target <%s>, got <%s>", tt.wantTag, got)
			}
			wantFrame := tt.payload.Frame
			if wantFrame == "" {
				wantFrame = types.MainFrame
			}
			if ev.Doc.FrameID != wantFrame {
				t.Errorf("expected frame %s, got %s", wantFrame, ev.Doc.FrameID)
			}
			if ev.Value != tt.payload.Value {
				t.Errorf("expected value %q, got %q", tt.payload.Value, ev.Value)
			}
		})
	}
}

func TestDispatch(t *testing.T) {
	sess := session.New()
	if err := sess.Start(nil); err != nil {
		t.Fatal(err)
	}
	c := capture.New(sess, locator.NewXPathResolver())
	defer c.Close()
	r := NewRecorder("https://example.com/", Config{})

	raw, err := json.Marshal(Payload{Type: "click", HTML: pageHTML, Path: pathTo(t, "//button"), Tag: "button"})
	if err != nil {
		t.Fatal(err)
	}
	out := r.dispatch(context.Background(), c, string(raw))
	var got []string
	for _, st := range out.Recorded {
		got = append(got, st.Locator)
	}
	if diff := cmp.Diff([]string{`//button[normalize-space(text())="Sign In"]`}, got); diff != "" {
		t.Errorf("unexpected steps (-want +got):\n%s", diff)
	}

	if out := r.dispatch(context.Background(), c, "{broken"); len(out.Recorded) != 0 {
		t.Error("expected a malformed payload to be dropped")
	}
}

func TestObserveKeepsLatestState(t *testing.T) {
	r := NewRecorder("about:blank", Config{})
	r.Observe(session.Recording, 0)
	r.Observe(session.Paused, 0)
	r.Observe(session.Recording, 1)
	if got := <-r.states; !got {
		t.Error("expected the latest state to be recording")
	}
	select {
	case v := <-r.states:
		t.Errorf("expected a single pending state, got another one: %t", v)
	default:
	}
}

func TestScriptUsesBinding(t *testing.T) {
	if !strings.Contains(recorderScript, "window."+bindingName) {
		t.Errorf("listener script does not call the %s binding", bindingName)
	}
}
