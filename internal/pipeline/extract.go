package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ppiankov/alma/internal/model"
	"github.com/ppiankov/alma/internal/util"
	"golang.org/x/net/html"
)

// boilerplate is removed before text extraction
const boilerplate = "script, style, noscript, iframe, nav, header, footer, svg, form, template"

// extractPage turns fetched HTML into a Page with a title and visible text.
// Content is capped at maxContent runes.
func extractPage(rawURL string, fr *FetchResult, maxContent int, fetchedAt time.Time) (*model.Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fr.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	// Title first: the h1 fallback often lives inside <header>
	title := pageTitle(doc, fr.Subject)

	doc.Find(boilerplate).Remove()
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var b strings.Builder
	for _, n := range root.Nodes {
		collectText(n, &b)
	}

	return &model.Page{
		URL:       rawURL,
		FinalURL:  fr.FinalURL,
		Title:     title,
		Content:   util.Truncate(util.CollapseSpace(b.String()), maxContent),
		HTML:      fr.HTML,
		FetchedAt: fetchedAt,
		FetchMeta: fr.Meta,
	}, nil
}

func pageTitle(doc *goquery.Document, fallback string) string {
	candidates := []string{
		doc.Find("title").First().Text(),
		doc.Find(`meta[property="og:title"]`).AttrOr("content", ""),
		doc.Find("h1").First().Text(),
		fallback,
	}
	for _, c := range candidates {
		if c = util.CollapseSpace(c); c != "" {
			return c
		}
	}
	return ""
}

// collectText appends every text node under n, separated by spaces so
// adjacent block elements do not run together
func collectText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	case html.CommentNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}
