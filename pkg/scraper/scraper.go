package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/readaloud/internal/models"
	"github.com/xhad/readaloud/internal/types"
	"golang.org/x/time/rate"
)

type ScraperConfig struct {
	Timeout          time.Duration
	RateLimit        float64 // requests per second
	UserAgent        string
	ContentSelectors []string
	OnProgress       func(url string)
}

type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
}

var defaultSelectors = []string{
	"article",
	"main",
	"[role=main]",
	".content",
	"#content",
}

// Elements that never carry article prose.
var noiseSelectors = "script, style, noscript, nav, header, footer, aside, form, iframe, figure figcaption"

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123,
	time.RFC1123Z,
}

func NewWithConfig(config ScraperConfig) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if config.UserAgent == "" {
		config.UserAgent = "readaloud/1.0 (+https://github.com/xhad/readaloud)"
	}
	if len(config.ContentSelectors) == 0 {
		config.ContentSelectors = defaultSelectors
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

func New() *Scraper {
	return NewWithConfig(ScraperConfig{})
}

// Fetch downloads a web page and extracts its title, publish date and body text.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (*models.Document, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url %q: %v", types.ErrFetch, rawURL, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("%w: url scheme must be http or https, got %q", types.ErrFetch, parsedURL.Scheme)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrFetch, err)
	}
	if s.config.OnProgress != nil {
		s.config.OnProgress(rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrFetch, err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: received status code %d for URL: %s", types.ErrFetch, resp.StatusCode, rawURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse html: %v", types.ErrFetch, err)
	}

	// Title and date first: body extraction strips header elements.
	title := extractTitle(doc)
	published := extractPublishDate(doc)

	return &models.Document{
		URL:         rawURL,
		Title:       title,
		Body:        s.extractMainContent(doc),
		PublishDate: published,
		Metadata: map[string]interface{}{
			"time":         time.Now(),
			"contentType":  resp.Header.Get("Content-Type"),
			"lastModified": resp.Header.Get("Last-Modified"),
		},
	}, nil
}

func (s *Scraper) cleanContent(content string) string {
	// Remove extra whitespace
	content = strings.Join(strings.Fields(content), " ")

	// Remove common noise
	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}

	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}

// extractMainContent returns the article prose, one paragraph per block
// separated by blank lines.
func (s *Scraper) extractMainContent(doc *goquery.Document) string {
	doc.Find(noiseSelectors).Remove()

	// Try to find main content area
	var root *goquery.Selection
	for _, selector := range s.config.ContentSelectors {
		if selected := doc.Find(selector).First(); selected.Length() > 0 {
			root = selected
			break
		}
	}

	// Fallback to body if no main content found
	if root == nil {
		root = doc.Find("body")
	}

	var paragraphs []string
	root.Find("h1, h2, h3, h4, p, li, blockquote").Each(func(_ int, sel *goquery.Selection) {
		// Nested blocks are collected through their parent.
		if sel.ParentsFiltered("p, li, blockquote").Length() > 0 {
			return
		}
		if text := s.cleanContent(sel.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})

	if len(paragraphs) == 0 {
		return s.cleanContent(root.Text())
	}
	return strings.Join(paragraphs, "\n\n")
}

func extractTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func extractPublishDate(doc *goquery.Document) *time.Time {
	candidates := []string{}
	for _, sel := range []string{
		`meta[property="article:published_time"]`,
		`meta[itemprop="datePublished"]`,
		`meta[name="pubdate"]`,
		`meta[name="date"]`,
	} {
		if v, ok := doc.Find(sel).Attr("content"); ok {
			candidates = append(candidates, v)
		}
	}
	if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		candidates = append(candidates, v)
	}

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, c); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	return nil
}
