package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File reads ranges of local files. Paths are resolved against Root
// when it is set.
type File struct {
	root  string
	limit limiter
}

// NewFile creates a file fetcher rooted at root ("" for no root).
func NewFile(root string, bytesPerSecond int64) *File {
	return &File{root: root, limit: newLimiter(bytesPerSecond)}
}

// Fetch returns bytes [start, end) of path.
func (f *File) Fetch(ctx context.Context, path string, start, end int64) ([]byte, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full := path
	if f.root != "" {
		full = filepath.Join(f.root, filepath.FromSlash(path))
	}
	file, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	buf, err := f.limit.readRange(io.NewSectionReader(file, start, end-start), end-start)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return buf, nil
}

func checkRange(start, end int64) error {
	if start < 0 || end < start {
		return fmt.Errorf("invalid range [%d, %d)", start, end)
	}
	return nil
}
