package search

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/hyperifyio/serpctx/internal/model"
)

// FileProvider loads search results from a local JSON file for offline/testing use.
// The JSON file format is an array of objects: {"title": "...", "url": "...", "snippet": "..."}.
type FileProvider struct {
	Path string
}

type fileEntry struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

func (f *FileProvider) Name() string { return "file" }

func (f *FileProvider) Search(_ context.Context, query string, opt Options) (*model.StructuredPayload, error) {
	if strings.TrimSpace(f.Path) == "" {
		return nil, fmt.Errorf("file provider: %w", ErrUnavailable)
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	var raw []fileEntry
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	out := &model.StructuredPayload{Items: make([]model.StructuredItem, 0, len(raw))}
	for _, r := range raw {
		if r.URL == "" || r.Title == "" {
			continue
		}
		if q == "" || strings.Contains(strings.ToLower(r.Title), q) || strings.Contains(strings.ToLower(r.Snippet), q) {
			out.Items = append(out.Items, model.StructuredItem{Title: r.Title, URL: r.URL, Content: r.Snippet})
			if opt.Limit > 0 && len(out.Items) >= opt.Limit {
				break
			}
		}
	}
	return out, nil
}
