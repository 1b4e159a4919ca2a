package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eleven-am/livecaption/internal/app"
	"github.com/eleven-am/livecaption/internal/call"
	"github.com/eleven-am/livecaption/internal/calllog"
	"github.com/eleven-am/livecaption/internal/caption"
	"github.com/eleven-am/livecaption/internal/language"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line   string
		want   command
		wantOK bool
	}{
		{line: "", wantOK: false},
		{line: "   ", wantOK: false},
		{line: "hello there", want: command{name: "say", arg: "hello there"}, wantOK: true},
		{line: "/call bob0001", want: command{name: "call", arg: "bob0001"}, wantOK: true},
		{line: "/CALL  bob0001 ", want: command{name: "call", arg: "bob0001"}, wantOK: true},
		{line: "/accept", want: command{name: "accept"}, wantOK: true},
		{line: "  /lang en", want: command{name: "lang", arg: "en"}, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := parseLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if ok && got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

type fakeSession struct {
	calls []string
}

func (f *fakeSession) record(s string) error {
	f.calls = append(f.calls, s)
	return nil
}

func (f *fakeSession) CallUser(_ context.Context, target string) error {
	return f.record("call " + target)
}
func (f *fakeSession) Accept(context.Context) error         { return f.record("accept") }
func (f *fakeSession) Reject(context.Context) error         { return f.record("reject") }
func (f *fakeSession) Cancel(context.Context) error         { return f.record("cancel") }
func (f *fakeSession) End(context.Context) error            { return f.record("end") }
func (f *fakeSession) Say(text string) error                { return f.record("say " + text) }
func (f *fakeSession) EnableCaptions(context.Context) error { return f.record("captions") }

func (f *fakeSession) SetLanguage(_ context.Context, code string) error {
	if !language.Valid(code) {
		return app.ErrUnsupportedLanguage
	}
	return f.record("lang " + code)
}

func (f *fakeSession) Snapshot(context.Context) (app.Snapshot, error) {
	return app.Snapshot{
		Session:         call.Session{LocalID: "alice01", State: call.StateConnected, RemoteID: "bob0001"},
		Language:        "en",
		CaptionsEnabled: true,
	}, nil
}

func TestRepl_Exec(t *testing.T) {
	sess := &fakeSession{}
	var out bytes.Buffer
	r := &repl{session: sess, out: &out}
	ctx := context.Background()

	for _, line := range []string{"/call bob0001", "/accept", "hi bob", "/lang en", "/captions", "/end"} {
		c, _ := parseLine(line)
		quit, err := r.exec(ctx, c)
		if err != nil || quit {
			t.Fatalf("%q: quit=%v err=%v", line, quit, err)
		}
	}
	want := []string{"call bob0001", "accept", "say hi bob", "lang en", "captions", "end"}
	if strings.Join(sess.calls, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, sess.calls)
	}

	if _, err := r.exec(ctx, command{name: "call"}); err == nil {
		t.Error("expected usage error for /call without id")
	}
	if _, err := r.exec(ctx, command{name: "lang", arg: "xx"}); !errors.Is(err, app.ErrUnsupportedLanguage) {
		t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
	}
	if _, err := r.exec(ctx, command{name: "dance"}); !errors.Is(err, errUnknownCommand) {
		t.Errorf("expected errUnknownCommand, got %v", err)
	}

	if _, err := r.exec(ctx, command{name: "status"}); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out.String(), "state=connected remote=bob0001") {
		t.Errorf("unexpected status output %q", out.String())
	}

	quit, err := r.exec(ctx, command{name: "quit"})
	if err != nil || !quit {
		t.Errorf("expected quit, got quit=%v err=%v", quit, err)
	}
}

func TestConsole_PlainOutput(t *testing.T) {
	var out bytes.Buffer
	c := newConsole(&out, true)

	c.Identity("alice01")
	c.State(call.StateCalling, "bob0001")
	c.State(call.StateConnected, "bob0001")
	c.Caption(caption.Mine, "hello")
	c.Caption(caption.Remote, "merhaba")
	c.Caption(caption.Remote, "")
	c.Status(call.StatusRejected)
	c.CaptionsDisabled(app.ReasonAborted)

	want := []string{
		"your id: alice01",
		"calling bob0001 ...",
		"connected to bob0001",
		"  you: hello",
		"  bob0001: merhaba",
		"call rejected",
		"captions stopped after repeated recognizer aborts: /captions to resume",
	}
	got := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestAPIClient_Calls(t *testing.T) {
	started := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/calls" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(calllog.ListResponse{Calls: []*calllog.Call{
			{ID: "call_1", Caller: "alice01", Callee: "bob0001", Outcome: calllog.OutcomeCompleted, StartedAt: started, DurationMs: 65000},
			{ID: "call_2", Caller: "bob0001", Callee: "alice01", Outcome: calllog.OutcomeRejected, StartedAt: started},
		}})
	}))
	defer server.Close()

	api := &apiClient{base: server.URL + "/api/v1/", http: server.Client()}
	calls, err := api.calls(context.Background(), "alice01", 10)
	if err != nil {
		t.Fatalf("calls: %v", err)
	}
	if gotQuery != "limit=10&peer=alice01" {
		t.Errorf("unexpected query %q", gotQuery)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}

	var out bytes.Buffer
	renderCalls(&out, calls)
	text := out.String()
	for _, want := range []string{"call_1", "completed", "1m5s", "call_2", "rejected"} {
		if !strings.Contains(text, want) {
			t.Errorf("table missing %q:\n%s", want, text)
		}
	}
}

func TestAPIClient_ErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"code":"unavailable","message":"database down"}`))
	}))
	defer server.Close()

	api := &apiClient{base: server.URL, http: server.Client()}
	_, err := api.metrics(context.Background(), 24)
	if err == nil || !strings.Contains(err.Error(), "database down") {
		t.Errorf("expected server message in error, got %v", err)
	}
}

func TestRenderLanguages(t *testing.T) {
	var out bytes.Buffer
	renderLanguages(&out, language.Supported())
	for _, want := range []string{"tr-TR", "English", "zh-CN"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("language table missing %q", want)
		}
	}
}

func TestRenderEmpty(t *testing.T) {
	var out bytes.Buffer
	renderCalls(&out, nil)
	renderMetrics(&out, nil)
	if out.String() != "no calls\nno calls in this period\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}
