package source

import (
	"context"
	"fmt"
	"net/url"
	"path"
)

// Chapter is one chapter reference as listed by a source, in reading order.
type Chapter struct {
	Title string
	URL   string
}

// Page is one page image descriptor within a chapter.
type Page struct {
	URL string
}

// Ext returns the file extension of the page image, or empty when the URL carries none.
func (p Page) Ext() string {
	u, err := url.Parse(p.URL)
	if err != nil {
		return ""
	}
	return path.Ext(u.Path)
}

// Manga is the result of enumerating a target: its title plus the ordered chapter list.
type Manga struct {
	Title    string
	Chapters []Chapter
}

// Adapter is a manga source capability. Every method that hits the network is a
// single logical request; callers wrap it with the rate limiter and retry policy.
type Adapter interface {
	Name() string
	ValidateTarget(target string) bool
	ListChapters(ctx context.Context, target string) (*Manga, error)
	ListPages(ctx context.Context, chapter Chapter) ([]Page, error)
	FetchPage(ctx context.Context, page Page) ([]byte, error)
}

// RequestError carries the HTTP status of a failed source request so callers
// can classify it (retryable vs fatal, attributable to the source or not).
// StatusCode 0 means the request never produced a response (transport failure).
type RequestError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("source request %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("source request %s: %v", e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
