// Package retrieval gives the web-retrieval participant an opaque search capability.
package retrieval

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// DefaultEndpoint is the DuckDuckGo HTML search page, which needs no API key.
const DefaultEndpoint = "https://html.duckduckgo.com/html/"

type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher answers a free-text query with ranked results.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// HTTPSearcher scrapes an HTML results page laid out like DuckDuckGo's.
type HTTPSearcher struct {
	endpoint   string
	maxResults int
	client     *http.Client
}

func NewHTTPSearcher(endpoint string, maxResults int) *HTTPSearcher {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	return &HTTPSearcher{
		endpoint:   endpoint,
		maxResults: maxResults,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HTTPSearcher) Search(ctx context.Context, query string) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}

	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; scribe/1.0)")
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return ParseResults(string(body), s.maxResults)
}

// ParseResults extracts up to max results from a results page. Each result is a
// div whose class contains "result"; its title link has class result__a and its
// snippet class result__snippet.
func ParseResults(page string, max int) ([]Result, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var results []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= max {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "result") {
			if r := extract(n); r.URL != "" && r.Title != "" {
				results = append(results, r)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

func extract(n *html.Node) Result {
	var r Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result__a"):
				r.URL = resolveRedirect(attr(n, "href"))
				r.Title = text(n)
			case hasClass(n, "result__snippet"):
				r.Snippet = text(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return r
}

// resolveRedirect unwraps DuckDuckGo's //duckduckgo.com/l/?uddg=<target> links.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" && strings.HasSuffix(u.Host, "duckduckgo.com") {
		return target
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, field := range strings.Fields(attr(n, "class")) {
		if field == class {
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

func text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// Format renders results as a compact numbered list for a conversation message.
func Format(query string, results []Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No web results for %q.", query)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Web results for %q:\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s (%s)", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			sb.WriteString(": " + r.Snippet)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Static is a Searcher that always returns the same results.
type Static []Result

func (s Static) Search(ctx context.Context, query string) ([]Result, error) {
	return append([]Result(nil), s...), nil
}
