package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestTavily_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/search" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body tavilySearchRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.APIKey != "k" || body.Query != "python" || body.MaxResults != 5 || !body.IncludeAnswer || body.SearchDepth != "advanced" {
			t.Errorf("unexpected body %+v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"answer": "Python is a language.",
			"results": []map[string]any{
				{"title": "Docs", "url": "https://docs.python.org", "content": "Official docs", "score": 0.9},
			},
		})
	}))
	defer srv.Close()

	tv := &Tavily{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()}
	got, err := tv.Search(context.Background(), "python", Options{Limit: 5})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got.Answer != "Python is a language." || len(got.Items) != 1 || got.Items[0].Content != "Official docs" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestTavily_Extract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body tavilyExtractRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.URLs) != 1 || body.URLs[0] != "https://example.com/a" {
			t.Errorf("unexpected urls %v", body.URLs)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"url": "https://example.com/a", "raw_content": "Full text."}},
		})
	}))
	defer srv.Close()

	tv := &Tavily{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()}
	got, err := tv.Extract(context.Background(), "https://example.com/a")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got.Items[0].RawContent != "Full text." || got.Items[0].URL != "https://example.com/a" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestTavily_ExtractEmptyAndErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	tv := &Tavily{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()}
	if _, err := tv.Extract(context.Background(), "https://example.com"); err == nil {
		t.Fatalf("expected error for empty results")
	}
	status.Store(http.StatusTooManyRequests)
	if _, err := tv.Search(context.Background(), "q", Options{}); err == nil {
		t.Fatalf("expected error for 429")
	}
}

func TestTavily_NoKey(t *testing.T) {
	if _, err := (&Tavily{}).Search(context.Background(), "q", Options{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
