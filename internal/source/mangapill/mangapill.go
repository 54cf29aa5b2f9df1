package mangapill

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/astas888/manga-media-server/internal/source"
)

const (
	sourceName = "mangapill"
	baseURL    = "https://mangapill.com"

	requestTimeout = 20 * time.Second
	userAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

var (
	mangaURLPattern   = regexp.MustCompile(`^https?://(www\.)?mangapill\.com/manga/[\w\-]+`)
	chapterURLPattern = regexp.MustCompile(`^https?://(www\.)?mangapill\.com/chapter/[\w\-]+`)
)

// Source scrapes mangapill.com chapter listings and reader pages.
type Source struct {
	client *resty.Client
}

func New() *Source {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout).
		SetHeader("User-Agent", userAgent)
	return &Source{client: client}
}

func (*Source) Name() string {
	return sourceName
}

func (*Source) ValidateTarget(target string) bool {
	return mangaURLPattern.MatchString(target)
}

// ListChapters fetches the manga page and extracts the title plus every chapter
// link, deduplicated and sorted by URL so the reading order is stable.
func (s *Source) ListChapters(ctx context.Context, target string) (*source.Manga, error) {
	if !s.ValidateTarget(target) {
		return nil, fmt.Errorf("not a mangapill manga URL: %s", target)
	}

	body, err := s.get(ctx, target)
	if err != nil {
		return nil, err
	}
	return parseManga(body)
}

// ListPages fetches the chapter reader page and extracts the page image URLs in order.
func (s *Source) ListPages(ctx context.Context, chapter source.Chapter) ([]source.Page, error) {
	if !chapterURLPattern.MatchString(chapter.URL) {
		return nil, fmt.Errorf("not a mangapill chapter URL: %s", chapter.URL)
	}

	body, err := s.get(ctx, chapter.URL)
	if err != nil {
		return nil, err
	}
	return parsePages(body)
}

func (s *Source) FetchPage(ctx context.Context, page source.Page) ([]byte, error) {
	return s.get(ctx, page.URL)
}

func (s *Source) get(ctx context.Context, url string) ([]byte, error) {
	resp, err := s.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, &source.RequestError{URL: url, Err: err}
	}
	if resp.IsError() {
		return nil, &source.RequestError{URL: url, StatusCode: resp.StatusCode()}
	}
	return resp.Body(), nil
}

func parseManga(body []byte) (*source.Manga, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse manga page: %w", err)
	}

	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		title = "Unknown Title"
	}

	seen := make(map[string]bool)
	var chapters []source.Chapter
	doc.Find("a[href*='/chapter/']").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		chapterURL := absoluteURL(href)
		if seen[chapterURL] {
			return
		}
		seen[chapterURL] = true

		chapterTitle := strings.TrimSpace(sel.Text())
		if chapterTitle == "" {
			parts := strings.Split(chapterURL, "/")
			chapterTitle = parts[len(parts)-1]
		}
		chapters = append(chapters, source.Chapter{Title: chapterTitle, URL: chapterURL})
	})

	sort.Slice(chapters, func(i, j int) bool {
		return chapters[i].URL < chapters[j].URL
	})

	return &source.Manga{Title: title, Chapters: chapters}, nil
}

func parsePages(body []byte) ([]source.Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse chapter page: %w", err)
	}

	// Reader images normally live under /manga/; fall back to every img tag.
	images := doc.Find("img[src*='/manga/']")
	if images.Length() == 0 {
		images = doc.Find("img")
	}

	seen := make(map[string]bool)
	var pages []source.Page
	images.Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("data-src")
		if !ok || src == "" {
			src, _ = sel.Attr("src")
		}
		if src == "" {
			return
		}
		pageURL := absoluteURL(src)
		if seen[pageURL] {
			return
		}
		seen[pageURL] = true
		pages = append(pages, source.Page{URL: pageURL})
	})

	return pages, nil
}

func absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return baseURL + href
}
