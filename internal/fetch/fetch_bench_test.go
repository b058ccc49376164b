package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// Benchmark ScrapeMany through the direct provider at different fan-out limits.
func BenchmarkFetcher_ScrapeManyConcurrency(b *testing.B) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Millisecond)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><head><title>ok</title></head><body><main><p>hello</p></main></body></html>"))
	}))
	defer ts.Close()

	targets := make([]string, 20)
	for i := range targets {
		targets[i] = fmt.Sprintf("%s/page/%d", ts.URL, i)
	}
	for _, conc := range []int{1, 4, 10} {
		b.Run(fmt.Sprintf("conc=%d", conc), func(b *testing.B) {
			f := &Fetcher{
				Direct:      &Direct{Client: &Client{HTTPClient: ts.Client(), UserAgent: "bench/1", MaxAttempts: 1, PerRequestTimeout: 2 * time.Second}},
				Concurrency: conc,
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = f.ScrapeMany(context.Background(), targets)
			}
		})
	}
}
