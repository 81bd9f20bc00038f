package tool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchPageMarkdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head>
			<title>Design Tips</title>
			<meta name="description" content="Slide design reference">
		</head><body><h2>Contrast</h2><p>Use high contrast.</p></body></html>`))
	}))
	defer srv.Close()

	ft := &FetchPageTool{HTTPClient: srv.Client()}
	var steps []string
	call := &Call{Report: func(s string) { steps = append(steps, s) }}

	res := ft.Execute(context.Background(), map[string]any{"url": srv.URL}, call)
	if res.IsError {
		t.Fatalf("Execute failed: %s", res.Content)
	}
	if !strings.Contains(res.Content, "## Contrast") {
		t.Errorf("content not converted to markdown:\n%s", res.Content)
	}
	if res.Data["title"] != "Design Tips" || res.Data["description"] != "Slide design reference" {
		t.Errorf("metadata = %v", res.Data)
	}
	if len(steps) == 0 || !strings.HasPrefix(steps[0], "fetching ") {
		t.Errorf("steps = %v", steps)
	}
}

func TestFetchPageRawFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><b>bold</b></body></html>"))
	}))
	defer srv.Close()

	ft := &FetchPageTool{HTTPClient: srv.Client()}
	call := &Call{Report: func(string) {}}
	res := ft.Execute(context.Background(),
		map[string]any{"url": srv.URL, "format": "raw"}, call)
	if !strings.Contains(res.Content, "<b>bold</b>") {
		t.Errorf("raw format should keep HTML:\n%s", res.Content)
	}
}

func TestFetchPageErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	ft := &FetchPageTool{HTTPClient: srv.Client()}
	call := &Call{Report: func(string) {}}

	res := ft.Execute(context.Background(), map[string]any{"url": srv.URL}, call)
	if !res.IsError || !strings.Contains(res.Content, "HTTP 404") {
		t.Errorf("result = %+v, want HTTP 404 error", res)
	}

	res = ft.Execute(context.Background(), map[string]any{}, call)
	if !res.IsError || !strings.HasPrefix(res.Content, KindInvalidArguments) {
		t.Errorf("missing url: %+v", res)
	}
}
