package tool

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageMeta is the normalized metadata extracted from a fetched HTML page.
type PageMeta struct {
	Title       string
	Description string
}

// metaRule maps one place a value may live in the document to a target
// field. Rules run in order; the first non-empty value per field wins.
type metaRule struct {
	selector string
	attr     string // empty means element text
	field    string // "title" or "description"
}

var metaRules = []metaRule{
	{`meta[property="og:title"]`, "content", "title"},
	{`meta[name="twitter:title"]`, "content", "title"},
	{"title", "", "title"},
	{"h1", "", "title"},
	{`meta[property="og:description"]`, "content", "description"},
	{`meta[name="description"]`, "content", "description"},
	{`meta[name="twitter:description"]`, "content", "description"},
}

// ExtractPageMeta pulls title and description out of an HTML document.
// Pages declare these in half a dozen competing shapes; the rule table
// keeps the precedence explicit instead of scattering fallbacks through
// the fetch path. A parse failure returns empty metadata, never an error.
func ExtractPageMeta(html string) PageMeta {
	var meta PageMeta
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return meta
	}

	for _, rule := range metaRules {
		if rule.field == "title" && meta.Title != "" {
			continue
		}
		if rule.field == "description" && meta.Description != "" {
			continue
		}

		sel := doc.Find(rule.selector).First()
		var value string
		if rule.attr != "" {
			value, _ = sel.Attr(rule.attr)
		} else {
			value = sel.Text()
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if rule.field == "title" {
			meta.Title = value
		} else {
			meta.Description = value
		}
	}
	return meta
}
