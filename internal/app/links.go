package app

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"letterforge/internal/util"
	"letterforge/pkg/ai"
	"letterforge/pkg/domain"
)

var linkPattern = regexp.MustCompile(`^https?://`)

// ParseLinks splits raw newline-delimited link text into the ordered list of
// lines that look like URLs. Non-blank lines without an http(s) prefix are
// dropped.
func ParseLinks(linksRaw string) []string {
	lines := strings.Split(linksRaw, "\n")
	links := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || !linkPattern.MatchString(line) {
			continue
		}
		links = append(links, line)
	}
	return links
}

// ValidateGenerationInput checks a newsletter is generatable. It runs before
// any state mutation or backend call.
func ValidateGenerationInput(n domain.Newsletter) error {
	if strings.TrimSpace(n.Title) == "" {
		return validationErr("newsletter title is required")
	}
	if len(ParseLinks(n.LinksRaw)) == 0 {
		return validationErr("at least one http(s) link is required")
	}
	return nil
}

// LinkEnricher fetches page titles for links so the prompt can describe each
// article, not just its URL. Enrichment is best effort: a fetch failure
// leaves the link title empty.
type LinkEnricher struct {
	timeout     time.Duration
	concurrency int
}

// NewLinkEnricher builds an enricher with per-fetch timeout.
func NewLinkEnricher() *LinkEnricher {
	return &LinkEnricher{
		timeout:     10 * time.Second,
		concurrency: 4,
	}
}

// Enrich resolves titles for each URL concurrently, preserving order.
func (e *LinkEnricher) Enrich(ctx context.Context, urls []string) []ai.Link {
	links := make([]ai.Link, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, u := range urls {
		links[i] = ai.Link{URL: u}
		g.Go(func() error {
			title, err := e.fetchTitle(gctx, u)
			if err != nil {
				util.LoggerFromContext(ctx).Debug("link enrichment failed", "url", u, "err", err)
				return nil
			}
			links[i].Title = title
			return nil
		})
	}
	_ = g.Wait()
	return links
}

func (e *LinkEnricher) fetchTitle(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	fetchCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	article, err := readability.FromURL(rawURL, e.timeout)
	if err == nil && strings.TrimSpace(article.Title) != "" {
		return strings.TrimSpace(article.Title), nil
	}
	return fetchTitleTag(fetchCtx, parsed.String())
}

// fetchTitleTag falls back to the document <title> when readability cannot
// extract an article.
func fetchTitleTag(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return "", err
	}
	if title := findTitle(doc); title != "" {
		return title, nil
	}
	return "", errors.New("no title element")
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := findTitle(c); title != "" {
			return title
		}
	}
	return ""
}
