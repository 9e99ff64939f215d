package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/pkg/chunked"
)

var content = []byte("0123456789abcdefghij")

func TestFile_Fetch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.bin"), content, 0o644))
	f := NewFile(dir, 0)
	ctx := context.Background()

	tests := []struct {
		name       string
		start, end int64
		want       string
	}{
		{"prefix", 0, 5, "01234"},
		{"middle", 10, 13, "abc"},
		{"past end", 15, 30, "fghij"},
		{"beyond end", 40, 50, ""},
		{"empty", 3, 3, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Fetch(ctx, "data.bin", tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := f.Fetch(ctx, "nope.bin", 0, 1)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("invalid range", func(t *testing.T) {
		_, err := f.Fetch(ctx, "data.bin", 5, 2)
		assert.Error(t, err)
	})
}

func TestHTTP_Fetch(t *testing.T) {
	var (
		mu     sync.Mutex
		ranges []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ranges = append(ranges, r.Header.Get("Range"))
		mu.Unlock()
		http.ServeContent(w, r, "data.bin", time.Time{}, bytes.NewReader(content))
	}))
	defer srv.Close()

	h := NewHTTP(srv.Client(), 0)
	ctx := context.Background()

	got, err := h.Fetch(ctx, srv.URL+"/data.bin", 2, 6)
	require.NoError(t, err)
	assert.Equal(t, "2345", string(got))
	mu.Lock()
	assert.Equal(t, []string{"bytes=2-5"}, ranges)
	mu.Unlock()

	got, err = h.Fetch(ctx, srv.URL+"/data.bin", 18, 30)
	require.NoError(t, err)
	assert.Equal(t, "ij", string(got))

	got, err = h.Fetch(ctx, srv.URL+"/data.bin", 25, 30)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHTTP_FetchWithoutRangeSupport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(content)
	}))
	defer srv.Close()

	got, err := NewHTTP(srv.Client(), 0).Fetch(context.Background(), srv.URL, 4, 8)
	require.NoError(t, err)
	assert.Equal(t, "4567", string(got))
}

func TestHTTP_FetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.Client(), 0).Fetch(context.Background(), srv.URL, 0, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

type fakeS3 struct {
	objects map[string][]byte
	inputs  []*s3.GetObjectInput
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.inputs = append(f.inputs, in)
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	var start, end int64
	rng := strings.TrimPrefix(*in.Range, "bytes=")
	a, b, _ := strings.Cut(rng, "-")
	start, end = parseInt(a), parseInt(b)+1
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data[start:end]))}, nil
}

func parseInt(s string) int64 {
	var n int64
	for _, c := range s {
		n = n*10 + int64(c-'0')
	}
	return n
}

func TestS3_Fetch(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"bucket/dir/data.bin": content}}
	s := NewS3WithClient(fake, 0)

	got, err := s.Fetch(context.Background(), "bucket/dir/data.bin", 5, 10)
	require.NoError(t, err)
	assert.Equal(t, "56789", string(got))
	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "bytes=5-9", *fake.inputs[0].Range)
	assert.Equal(t, "dir/data.bin", *fake.inputs[0].Key)

	_, err = s.Fetch(context.Background(), "bucket-only", 0, 1)
	assert.Error(t, err)

	_, err = s.Fetch(context.Background(), "bucket/missing", 0, 1)
	assert.Error(t, err)
}

type fakeRequester struct {
	last domain.Request
	resp domain.Response
	data []byte
	err  error
}

func (f *fakeRequester) Request(ctx context.Context, req domain.Request) (domain.Response, []byte, error) {
	f.last = req
	return f.resp, f.data, f.err
}

func TestRPC_Fetch(t *testing.T) {
	req := &fakeRequester{
		resp: domain.Response{Type: domain.TypeReadFileResponse},
		data: []byte("abc"),
	}
	r := NewRPC(req)

	got, err := r.Fetch(context.Background(), "sub/file.jsonl", 10, 13)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, domain.TypeReadFileRequest, req.last.Type)
	assert.Equal(t, "sub/file.jsonl", req.last.Path)
	require.NotNil(t, req.last.Start)
	assert.Equal(t, int64(10), *req.last.Start)

	req.resp.Type = domain.TypeProbeResponse
	_, err = r.Fetch(context.Background(), "sub/file.jsonl", 0, 1)
	assert.ErrorIs(t, err, domain.ErrUnexpectedMessage)

	req.err = domain.ErrNotConnected
	_, err = r.Fetch(context.Background(), "sub/file.jsonl", 0, 1)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	f, path, err := Resolve(ctx, "/tmp/data.jsonl", Config{})
	require.NoError(t, err)
	assert.IsType(t, &File{}, f)
	assert.Equal(t, "/tmp/data.jsonl", path)

	f, path, err = Resolve(ctx, "file:///tmp/data.jsonl", Config{})
	require.NoError(t, err)
	assert.IsType(t, &File{}, f)
	assert.Equal(t, "/tmp/data.jsonl", path)

	f, path, err = Resolve(ctx, "https://example.org/x.jsonl", Config{})
	require.NoError(t, err)
	assert.IsType(t, &HTTP{}, f)
	assert.Equal(t, "https://example.org/x.jsonl", path)

	_, _, err = Resolve(ctx, "ftp://example.org/x", Config{})
	assert.Error(t, err)
}

func TestChunkedReaderOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "data.bin", time.Time{}, bytes.NewReader(content))
	}))
	defer srv.Close()

	reader := chunked.NewReader(NewHTTP(srv.Client(), 0), srv.URL, chunked.WithChunkSize(6))
	defer reader.Close()

	got, err := reader.GetRange(context.Background(), 4, 15)
	require.NoError(t, err)
	assert.Equal(t, string(content[4:15]), string(got))
}

func TestLimiter(t *testing.T) {
	l := newLimiter(0)
	got, err := l.readRange(bytes.NewReader(content), 4)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(got))

	l = newLimiter(1 << 20)
	require.NotNil(t, l.bucket)
	got, err = l.readRange(bytes.NewReader(content), 100)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}
