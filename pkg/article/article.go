// Package article downloads a web page and extracts its readable text.
package article

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
)

// MaxBodySize caps the HTML read from a page.
const MaxBodySize = 10 * 1024 * 1024

// ErrTooLarge is returned when a page exceeds MaxBodySize.
var ErrTooLarge = errors.New("article: page exceeds size limit")

// Article is the extracted content of a page.
type Article struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Byline   string `json:"byline,omitempty"`
	SiteName string `json:"siteName,omitempty"`
	Text     string `json:"text"`
}

// Fetcher downloads pages. The zero value uses a client with a 30 second
// timeout.
type Fetcher struct {
	Client *http.Client
}

// Fetch downloads rawURL and extracts its article text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Article, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Article{}, fmt.Errorf("article: invalid url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Article{}, fmt.Errorf("article: %w", err)
	}
	// Some sites reject requests that do not look like a browser.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := f.client().Do(req)
	if err != nil {
		return Article{}, fmt.Errorf("article: fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Article{}, fmt.Errorf("article: fetch %s: status %d", u, resp.StatusCode)
	}
	if resp.ContentLength > MaxBodySize {
		return Article{}, ErrTooLarge
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return Article{}, fmt.Errorf("article: read %s: %w", u, err)
	}
	if len(body) > MaxBodySize {
		return Article{}, ErrTooLarge
	}
	return Extract(body, u)
}

// Extract parses an HTML page. Ruby annotations are removed first so
// furigana is not duplicated into the text.
func Extract(page []byte, u *url.URL) (Article, error) {
	parsed, err := readability.FromReader(bytes.NewReader(SanitizeRuby(page)), u)
	if err != nil {
		return Article{}, fmt.Errorf("article: extract: %w", err)
	}
	text := strings.TrimSpace(parsed.TextContent)
	if text == "" {
		return Article{}, errors.New("article: no readable text")
	}
	a := Article{
		Title:    strings.TrimSpace(parsed.Title),
		Byline:   strings.TrimSpace(parsed.Byline),
		SiteName: strings.TrimSpace(parsed.SiteName),
		Text:     text,
	}
	if u != nil {
		a.URL = u.String()
	}
	return a, nil
}

var (
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// SanitizeRuby strips <rt> and <rp> elements, so "<ruby>漢字<rt>かんじ</rt></ruby>"
// reads as "漢字". It works on raw bytes, which is safe for Shift_JIS too.
func SanitizeRuby(content []byte) []byte {
	return reRP.ReplaceAll(reRT.ReplaceAll(content, nil), nil)
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}
