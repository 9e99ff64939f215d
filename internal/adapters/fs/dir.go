package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/pkg/log"
)

// ErrNotShareable is returned for paths outside the shared set: hidden
// files, files with unlisted extensions, or paths escaping the directory.
var ErrNotShareable = errors.New("rtcshare: file not shareable")

var shareableExtensions = map[string]bool{
	"txt": true, "json": true, "yaml": true, "md": true, "py": true,
	"ts": true, "tsx": true, "rst": true, "jsonl": true, "qjb1": true,
}

// Dir answers probe, readDir and readFile requests for one shared
// directory.
type Dir struct {
	root   string
	proxy  bool
	logger log.Logger
}

// NewDir creates a Dir serving root. proxy is reported by probe
// responses when the directory is also reachable through a relay.
func NewDir(root string, proxy bool, logger log.Logger) *Dir {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Dir{root: root, proxy: proxy, logger: logger}
}

// Root returns the shared directory.
func (d *Dir) Root() string {
	return d.root
}

// HandleRequest implements ports.RequestHandler.
func (d *Dir) HandleRequest(ctx context.Context, req domain.Request) (domain.Response, []byte, error) {
	switch req.Type {
	case domain.TypeProbeRequest:
		return domain.Response{
			Type:            domain.TypeProbeResponse,
			ProtocolVersion: domain.ProtocolVersion,
			Proxy:           d.proxy,
		}, nil, nil

	case domain.TypeReadDirRequest:
		resp, err := d.readDir(req.Path)
		return resp, nil, err

	case domain.TypeReadFileRequest:
		d.logger.Debug("read file", log.String("path", req.Path))
		data, err := d.readFile(req.Path, req.Start, req.End)
		if err != nil {
			return domain.Response{}, nil, err
		}
		return domain.Response{Type: domain.TypeReadFileResponse}, data, nil

	default:
		return domain.Response{}, nil, fmt.Errorf("%w: unexpected request type %q", domain.ErrInvalidRequest, req.Type)
	}
}

// resolve maps a request path to a file system path inside the root.
func (d *Dir) resolve(p string) (string, error) {
	clean := path.Clean("/" + p)
	for _, part := range strings.Split(clean, "/") {
		if strings.HasPrefix(part, ".") {
			return "", fmt.Errorf("%w: %s", ErrNotShareable, p)
		}
	}
	return filepath.Join(d.root, filepath.FromSlash(clean)), nil
}

func isShareable(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := path.Ext(name)
	return ext != "" && shareableExtensions[ext[1:]]
}

func (d *Dir) readDir(p string) (domain.Response, error) {
	full, err := d.resolve(p)
	if err != nil {
		return domain.Response{}, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return domain.Response{}, err
	}

	resp := domain.Response{
		Type:  domain.TypeReadDirResponse,
		Files: []domain.FileEntry{},
		Dirs:  []domain.DirEntry{},
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		switch {
		case info.IsDir():
			resp.Dirs = append(resp.Dirs, domain.DirEntry{Name: e.Name()})
		case info.Mode().IsRegular():
			resp.Files = append(resp.Files, domain.FileEntry{
				Name:  e.Name(),
				Size:  info.Size(),
				Mtime: info.ModTime().UnixMilli(),
			})
		}
	}
	return resp, nil
}

// readFile returns bytes [start, end) of p, or the whole file when both
// bounds are nil. The result is short when end is past the end of file.
func (d *Dir) readFile(p string, start, end *int64) ([]byte, error) {
	if !isShareable(path.Base(p)) {
		return nil, fmt.Errorf("%w: %s", ErrNotShareable, p)
	}
	full, err := d.resolve(p)
	if err != nil {
		return nil, err
	}
	if start == nil && end == nil {
		return os.ReadFile(full)
	}
	if start == nil || end == nil {
		return nil, fmt.Errorf("%w: start and end must be given together", domain.ErrInvalidRequest)
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(io.NewSectionReader(f, *start, *end-*start))
}
