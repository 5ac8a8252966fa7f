package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jakopako/steprec/internal/types"
)

const loginPage = `<html><body><form name="login"><input name="username"></form></body></html>`

func TestNewFetcher(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		wantErr bool
	}{
		{name: "default", typ: ""},
		{name: "static", typ: TypeStatic},
		{name: "mock", typ: TypeMock},
		{name: "unknown", typ: "carrier-pigeon", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, err := NewFetcher(&FetcherConfig{Type: tc.typ})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected an error for type %q", tc.typ)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f == nil {
				t.Fatal("expected a fetcher")
			}
		})
	}
}

func TestMockFetcher(t *testing.T) {
	f := NewMockFetcher(&FetcherConfig{MockPages: []MockPage{{URL: "https://example.com/login", Content: loginPage}}})
	got, err := f.Fetch(context.Background(), "https://example.com/login", FetchOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != loginPage {
		t.Errorf("got %q, want %q", got, loginPage)
	}
	if _, err := f.Fetch(context.Background(), "https://example.com/other", FetchOpts{}); err == nil {
		t.Error("expected an error for an unknown page")
	}
	if len(f.Requests) != 2 {
		t.Errorf("expected 2 recorded requests, got %d", len(f.Requests))
	}
}

func TestStaticFetcherHTTP(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login" {
			http.NotFound(w, r)
			return
		}
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, loginPage)
	}))
	defer srv.Close()

	f := NewStaticFetcher(&FetcherConfig{UserAgent: "steprec-test"})
	got, err := f.Fetch(context.Background(), srv.URL+"/login", FetchOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != loginPage {
		t.Errorf("got %q, want %q", got, loginPage)
	}
	if gotUA != "steprec-test" {
		t.Errorf("expected user agent steprec-test, got %q", gotUA)
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/missing", FetchOpts{}); err == nil {
		t.Error("expected a status code error")
	}
}

func TestStaticFetcherFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "login.html")
	if err := os.WriteFile(p, []byte(loginPage), 0644); err != nil {
		t.Fatal(err)
	}
	f := NewStaticFetcher(&FetcherConfig{})
	got, err := f.Fetch(context.Background(), "file://"+p, FetchOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != loginPage {
		t.Errorf("got %q, want %q", got, loginPage)
	}
}

func TestStepAction(t *testing.T) {
	tests := []struct {
		name    string
		step    types.Step
		wantNil bool
	}{
		{name: "click", step: types.Step{ID: 1, Locator: "//button", Action: types.ActionClick}},
		{name: "send keys", step: types.Step{ID: 2, Locator: "//input", Action: types.ActionSendKeys, Data: "alice"}},
		{name: "tab", step: types.Step{ID: 3, Locator: "//input", Action: types.ActionTab}},
		{name: "verify", step: types.Step{ID: 4, Locator: "//span", Action: types.ActionVerify}},
		{name: "unknown action", step: types.Step{ID: 5, Locator: "//span", Action: "wiggle"}, wantNil: true},
		{name: "no locator", step: types.Step{ID: 6, Action: types.ActionClick}, wantNil: true},
		{name: "inside frame", step: types.Step{ID: 7, Locator: "//button", Action: types.ActionClick, FrameID: "editor"}, wantNil: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := stepAction(tc.step, slog.Default())
			if (a == nil) != tc.wantNil {
				t.Errorf("stepAction(%+v) = %v, wantNil %v", tc.step, a, tc.wantNil)
			}
		})
	}
}
