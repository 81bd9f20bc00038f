package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

const (
	maxResponseSize = 5 * 1024 * 1024 // 5MB
	httpTimeout     = 30 * time.Second
)

// FetchPageTool fetches content from URLs, converting HTML to Markdown so
// the model can read reference material while drafting slides.
type FetchPageTool struct {
	// HTTPClient overrides the default client in tests.
	HTTPClient *http.Client
}

func (t *FetchPageTool) Name() string { return "fetch_page" }

func (t *FetchPageTool) Description() string {
	return "Fetch content from a URL. HTML is converted to Markdown for readability."
}

func (t *FetchPageTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to fetch content from",
			},
			"format": map[string]any{
				"type":        "string",
				"description": "Output format: 'markdown' (default) or 'raw'",
			},
		},
		"required": []string{"url"},
	}
}

func (t *FetchPageTool) Execute(ctx context.Context, params map[string]any, call *Call) Result {
	urlStr, ok := stringParam(params, "url")
	if !ok || urlStr == "" {
		return Errorf(KindInvalidArguments, "url is required")
	}
	if !strings.HasPrefix(urlStr, "http://") && !strings.HasPrefix(urlStr, "https://") {
		urlStr = "https://" + urlStr
	}

	format := "markdown"
	if f, ok := stringParam(params, "format"); ok && f != "" {
		format = f
	}

	client := t.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: httpTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return Errorf(KindInvalidArguments, "invalid URL: %v", err)
	}
	req.Header.Set("User-Agent", "PPTGirl/1.0")

	call.Report("fetching " + urlStr)
	resp, err := client.Do(req)
	if err != nil {
		return Errorf(KindToolExecutionFailed, "request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Errorf(KindToolExecutionFailed, "HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Errorf(KindToolExecutionFailed, "failed to read response: %v", err)
	}

	content := string(body)
	contentType := resp.Header.Get("Content-Type")

	var meta PageMeta
	if strings.Contains(contentType, "text/html") {
		meta = ExtractPageMeta(content)
		if format == "markdown" {
			converter := md.NewConverter("", true, nil)
			if markdown, err := converter.ConvertString(content); err == nil {
				content = markdown
			}
		}
	}

	truncated := false
	lines := strings.Split(content, "\n")
	if len(lines) > maxReadLines {
		lines = lines[:maxReadLines]
		content = strings.Join(lines, "\n") + fmt.Sprintf("\n... (truncated at %d lines)", maxReadLines)
		truncated = true
	}

	data := map[string]any{
		"url":       urlStr,
		"status":    resp.StatusCode,
		"size":      len(body),
		"truncated": truncated,
	}
	if meta.Title != "" {
		data["title"] = meta.Title
	}
	if meta.Description != "" {
		data["description"] = meta.Description
	}
	return Result{Content: content, Data: data}
}
