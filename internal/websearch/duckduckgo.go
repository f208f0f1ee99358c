package websearch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/malaya-ai/malaya/libs/query-engine/internal/index"
)

// DuckDuckGoConfig holds DuckDuckGo HTML endpoint settings.
type DuckDuckGoConfig struct {
	Endpoint  string // Default: https://html.duckduckgo.com/html/
	UserAgent string
	Region    string // kl parameter, default "my-en"
	Timeout   time.Duration
}

// DuckDuckGo searches the DuckDuckGo HTML endpoint. No API key is needed.
type DuckDuckGo struct {
	httpClient *http.Client
	endpoint   string
	userAgent  string
	region     string
}

var _ Searcher = (*DuckDuckGo)(nil)

// NewDuckDuckGo creates a DuckDuckGo searcher.
func NewDuckDuckGo(cfg DuckDuckGoConfig) *DuckDuckGo {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://html.duckduckgo.com/html/"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (compatible; malaya-query-engine/1.0)"
	}
	if cfg.Region == "" {
		cfg.Region = "my-en"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &DuckDuckGo{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		endpoint:   cfg.Endpoint,
		userAgent:  cfg.UserAgent,
		region:     cfg.Region,
	}
}

// Search runs one query. HTTP 403/429 and the bot-check page map to ErrQuota.
func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults <= 0 {
		maxResults = 10
	}

	form := url.Values{"q": {query}, "kl": {d.region}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ms-MY,ms;q=0.9,en;q=0.8")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: HTTP %d", ErrQuota, resp.StatusCode)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted:
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1MB limit
	if err != nil {
		return nil, &TransportError{Op: "read", Err: err}
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: "parse", Err: err}
	}
	// Rate limiting comes back as 202 with a captcha page instead of results.
	if findClass(doc, "anomaly-modal") != nil {
		return nil, fmt.Errorf("%w: bot check", ErrQuota)
	}
	if resp.StatusCode == http.StatusAccepted {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	return parseResults(doc, maxResults), nil
}

// parseResults extracts results from the result__body blocks of the page.
func parseResults(doc *html.Node, maxResults int) []Result {
	results := []Result{}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "result") && !hasClass(n, "result--ad") {
			if r, ok := extractResult(n); ok {
				results = append(results, r)
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

func extractResult(n *html.Node) (Result, bool) {
	var r Result

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result__a"):
				r.URL = resolveRedirect(attr(n, "href"))
				r.Title = text(n)
			case hasClass(n, "result__snippet"):
				r.Content = text(n)
			case hasClass(n, "result__timestamp"):
				if t, ok := parseTimestamp(text(n)); ok {
					r.PublishedAt = &t
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	if r.URL == "" || r.Title == "" {
		return r, false
	}
	if r.Content == "" {
		r.Content = r.Title
	}
	r.Domain = index.Host(r.URL)
	return r, true
}

// resolveRedirect unwraps //duckduckgo.com/l/?uddg=<target> links.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && u.Path == "/l/" {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

var timestampLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func findClass(n *html.Node, class string) *html.Node {
	if n.Type == html.ElementNode && hasClass(n, class) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findClass(c, class); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// text returns the whitespace-folded text content of n.
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
