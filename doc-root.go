package staticache

import (
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"
)

// DocRoot is the only component that touches the filesystem.
// It resolves normalized request paths against the root directory and
// reports file contents and modification times.
type DocRoot struct {
	dir   string
	reads int64
}

func NewDocRoot(dir string) *DocRoot {
	return &DocRoot{dir: dir}
}

// ModTime returns the last-modification time of the file at the given
// path, truncated to second precision to match HTTP-date granularity.
// Directories report fs.ErrNotExist: there is no directory listing, so a
// directory is not a servable file.
func (d *DocRoot) ModTime(p string) (time.Time, error) {
	fi, err := os.Stat(d.resolve(p))
	if err != nil {
		return time.Time{}, err
	}
	if fi.IsDir() {
		return time.Time{}, fs.ErrNotExist
	}
	return fi.ModTime().Truncate(time.Second), nil
}

// ReadFile reads the full file contents and derives the content type
// from the file extension.
func (d *DocRoot) ReadFile(p string) ([]byte, string, error) {
	body, err := os.ReadFile(d.resolve(p))
	if err != nil {
		return nil, "", err
	}
	atomic.AddInt64(&d.reads, 1)
	contentType := mime.TypeByExtension(path.Ext(p))
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	return body, contentType, nil
}

// Reads reports how many full-file disk reads have been performed.
// Cache hits do not increment it.
func (d *DocRoot) Reads() int64 {
	return atomic.LoadInt64(&d.reads)
}

func (d *DocRoot) resolve(p string) string {
	return filepath.Join(d.dir, filepath.FromSlash(p))
}
