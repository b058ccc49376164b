package model

import (
	"errors"
	"testing"
)

func TestTaskNormalize_Defaults(t *testing.T) {
	task := Task{Query: "  python  ", OutputFormat: "Vectors"}
	task.Normalize()
	if task.Query != "python" {
		t.Fatalf("query not trimmed: %q", task.Query)
	}
	if task.Region != "us" || task.Language != "en" {
		t.Fatalf("unexpected locale defaults: %q %q", task.Region, task.Language)
	}
	if task.Mode != ModeSearch || task.Limit != 10 {
		t.Fatalf("unexpected mode/limit: %q %d", task.Mode, task.Limit)
	}
	if !task.WantsVectors() {
		t.Fatalf("expected vectors alias to map to vector format")
	}
}

func TestTaskValidate(t *testing.T) {
	cases := []struct {
		name string
		task Task
		ok   bool
	}{
		{"valid", Task{Query: "q", Mode: ModeSearch, Limit: 5, OutputFormat: FormatMarkdown}, true},
		{"missing query", Task{Mode: ModeSearch, Limit: 5, OutputFormat: FormatMarkdown}, false},
		{"bad mode", Task{Query: "q", Mode: "crawl", Limit: 5, OutputFormat: FormatMarkdown}, false},
		{"bad format", Task{Query: "q", Mode: ModeScrape, Limit: 5, OutputFormat: "pdf"}, false},
		{"limit too high", Task{Query: "q", Mode: ModeSearch, Limit: MaxLimit + 1, OutputFormat: FormatJSON}, false},
	}
	for _, tc := range cases {
		err := tc.task.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidTask) {
			t.Fatalf("%s: expected ErrInvalidTask, got %v", tc.name, err)
		}
	}
}
