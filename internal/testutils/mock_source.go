package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/astas888/manga-media-server/internal/source"
)

// MockChapter describes one chapter served by a MockAdapter.
type MockChapter struct {
	Title        string
	Pages        int
	ListPagesErr error
}

// MockAdapter implements source.Adapter for tests. Failures are injected per
// page URL; Block, when set, makes every FetchPage wait until the channel is
// closed or the context is cancelled.
type MockAdapter struct {
	SourceName      string
	MangaTitle      string
	Chapters        []MockChapter
	ListChaptersErr error
	PageErrs        map[string]error
	Block           chan struct{}

	mu         sync.Mutex
	fetchCalls []string
}

func (m *MockAdapter) Name() string {
	if m.SourceName == "" {
		return "mock"
	}
	return m.SourceName
}

func (*MockAdapter) ValidateTarget(target string) bool {
	return target != ""
}

func (m *MockAdapter) ListChapters(_ context.Context, _ string) (*source.Manga, error) {
	if m.ListChaptersErr != nil {
		return nil, m.ListChaptersErr
	}

	title := m.MangaTitle
	if title == "" {
		title = "Test Manga"
	}
	chapters := make([]source.Chapter, len(m.Chapters))
	for i, ch := range m.Chapters {
		chapters[i] = source.Chapter{
			Title: ch.Title,
			URL:   fmt.Sprintf("mock://chapter/%d", i+1),
		}
	}
	return &source.Manga{Title: title, Chapters: chapters}, nil
}

func (m *MockAdapter) ListPages(_ context.Context, chapter source.Chapter) ([]source.Page, error) {
	for i, ch := range m.Chapters {
		if ch.Title != chapter.Title {
			continue
		}
		if ch.ListPagesErr != nil {
			return nil, ch.ListPagesErr
		}
		pages := make([]source.Page, ch.Pages)
		for p := range pages {
			pages[p] = source.Page{URL: m.PageURL(i+1, p+1)}
		}
		return pages, nil
	}
	return nil, fmt.Errorf("unknown chapter: %s", chapter.Title)
}

func (m *MockAdapter) FetchPage(ctx context.Context, page source.Page) ([]byte, error) {
	m.mu.Lock()
	m.fetchCalls = append(m.fetchCalls, page.URL)
	m.mu.Unlock()

	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := m.PageErrs[page.URL]; err != nil {
		return nil, err
	}
	return []byte("image data for " + page.URL), nil
}

// PageURL builds the canonical mock page URL (1-based indices), for wiring PageErrs.
func (m *MockAdapter) PageURL(chapterIndex, pageIndex int) string {
	return fmt.Sprintf("mock://page/%d/%d.jpg", chapterIndex, pageIndex)
}

// FetchCalls returns every page URL fetched so far, in call order.
func (m *MockAdapter) FetchCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]string, len(m.fetchCalls))
	copy(calls, m.fetchCalls)
	return calls
}
