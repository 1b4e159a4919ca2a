package translate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestGoogle(t *testing.T, handler http.HandlerFunc) (*Google, *int) {
	t.Helper()
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewGoogle(GoogleConfig{Endpoint: srv.URL}, nil), &hits
}

func TestGoogle_Translate(t *testing.T) {
	g, _ := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("client") != "gtx" || q.Get("sl") != "tr" || q.Get("tl") != "en" || q.Get("dt") != "t" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Get("q") != "Merhaba dünya. Nasılsın?" {
			t.Errorf("unexpected text %q", q.Get("q"))
		}
		w.Write([]byte(`[[["Hello world. ","Merhaba dünya.",null,null,10],["How are you?","Nasılsın?",null,null,10]],null,"tr"]`))
	})

	got, err := g.Translate(context.Background(), "Merhaba dünya. Nasılsın?", "tr", "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hello world. How are you?" {
		t.Errorf("got %q", got)
	}
}

func TestGoogle_SameLanguage(t *testing.T) {
	g, hits := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {})

	got, err := g.Translate(context.Background(), "hello", "en", "en")
	if err != nil || got != "hello" {
		t.Fatalf("got %q, %v", got, err)
	}
	if *hits != 0 {
		t.Error("same-language request must not hit the network")
	}
}

func TestGoogle_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error", http.StatusServiceUnavailable, "", ErrUpstream},
		{"rate limited", http.StatusTooManyRequests, "", ErrUpstream},
		{"empty array", http.StatusOK, `[]`, ErrEmptyResponse},
		{"null sentences", http.StatusOK, `[null,null,"tr"]`, ErrEmptyResponse},
		{"no text", http.StatusOK, `[[[null,"x"]],null,"tr"]`, ErrEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := g.Translate(context.Background(), "merhaba", "tr", "en")
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestGoogle_MalformedBody(t *testing.T) {
	g, _ := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"an array"}`))
	})

	if _, err := g.Translate(context.Background(), "merhaba", "tr", "en"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestGoogle_ContextCancelled(t *testing.T) {
	g, _ := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[["x"]]]`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := g.Translate(ctx, "merhaba", "tr", "en"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
