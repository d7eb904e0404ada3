// Package websearch supplements the knowledge base with live search results
// when retrieval comes back empty or uniformly weak. Search failures degrade
// to an empty result set and never fail a chat turn.
package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const (
	defaultSearchURL = "https://www.google.com/search"
	userAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	searchTimeout    = 10 * time.Second
)

// Result is one web search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher finds up to numResults hits for a query.
type Searcher interface {
	Search(ctx context.Context, query string, numResults int) []Result
}

// GoogleSearcher scrapes Google results pages. It parses the classic result
// layout: a div with class "g" per hit, an h3 title, the first anchor href,
// and a snippet span or div.
type GoogleSearcher struct {
	searchURL string
	client    *http.Client
	logger    *zap.Logger
}

// NewGoogleSearcher returns a searcher with the standard endpoint and timeout.
func NewGoogleSearcher(logger *zap.Logger) *GoogleSearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleSearcher{
		searchURL: defaultSearchURL,
		client:    &http.Client{Timeout: searchTimeout},
		logger:    logger,
	}
}

// Search fetches and parses one results page. Any failure returns nil.
func (g *GoogleSearcher) Search(ctx context.Context, query string, numResults int) []Result {
	params := url.Values{}
	params.Set("q", query)
	params.Set("num", fmt.Sprintf("%d", numResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		g.logger.Error("build search request", zap.Error(err))
		return nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Error("web search failed", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.logger.Warn("web search returned non-OK status", zap.Int("status", resp.StatusCode))
		return nil
	}

	results := parseResults(resp.Body, numResults)
	g.logger.Info("web search completed", zap.Int("results", len(results)))
	return results
}

// parseResults walks the HTML tree collecting result blocks.
func parseResults(r io.Reader, limit int) []Result {
	doc, err := html.Parse(r)
	if err != nil {
		return nil
	}

	var results []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "g") {
			if res, ok := parseResultBlock(n); ok {
				results = append(results, res)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results
}

// parseResultBlock extracts title, link, and snippet from one result div.
// Title and link are required; the snippet is optional.
func parseResultBlock(n *html.Node) (Result, bool) {
	var res Result
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode {
			switch {
			case node.Data == "h3" && res.Title == "":
				res.Title = textContent(node)
			case node.Data == "a" && res.URL == "":
				res.URL = attr(node, "href")
			case node.Data == "span" && hasClass(node, "aCOpRe") && res.Snippet == "":
				res.Snippet = textContent(node)
			case node.Data == "div" && hasClass(node, "VwiC3b") && res.Snippet == "":
				res.Snippet = textContent(node)
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	if res.Title == "" || res.URL == "" {
		return Result{}, false
	}
	return res, true
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

// FormatResults renders hits as the numbered block consumed by the prompt
// composer.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No additional information found."
	}

	var sb strings.Builder
	sb.WriteString("Here's some additional information from web search:\n\n")
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, r.Title)
		fmt.Fprintf(&sb, "   %s\n", r.URL)
		fmt.Fprintf(&sb, "   %s\n\n", r.Snippet)
	}
	return sb.String()
}
