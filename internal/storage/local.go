package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/astas888/manga-media-server/internal/logutils"
	"github.com/astas888/manga-media-server/internal/utils"
)

const (
	dirMode  = 0o755
	fileMode = 0o644
)

// LocalSink writes pages to <dir>/<manga>/<chapter>/NNN<ext>.
type LocalSink struct {
	dir string
}

func NewLocalSink(dir string) (*LocalSink, error) {
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, &SinkError{Path: dir, Err: err}
	}
	return &LocalSink{dir: dir}, nil
}

func (s *LocalSink) Save(jobID, mangaTitle, chapterTitle string, pageIndex int, ext string, data []byte) error {
	folder := filepath.Join(s.dir, utils.SanitizeFileName(mangaTitle), utils.SanitizeFileName(chapterTitle))
	if err := os.MkdirAll(folder, dirMode); err != nil {
		return &SinkError{Path: folder, Err: err}
	}

	if ext == "" {
		ext = ".jpg"
	}
	dest := filepath.Join(folder, fmt.Sprintf("%03d%s", pageIndex, ext))

	// A present non-empty file means a previous run already fetched this page.
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		logutils.Log.WithFields(logutils.Fields{
			"job_id": jobID,
			"path":   dest,
		}).Debug("Page already on disk, skipping write")
		return nil
	}

	if err := os.WriteFile(dest, data, fileMode); err != nil {
		return &SinkError{Path: dest, Err: err}
	}
	return nil
}
