package source

import (
	"io"

	"github.com/juju/ratelimit"
)

// limiter paces reads through a shared token bucket. The zero value does
// not limit.
type limiter struct {
	bucket *ratelimit.Bucket
}

func newLimiter(bytesPerSecond int64) limiter {
	if bytesPerSecond <= 0 {
		return limiter{}
	}
	return limiter{bucket: ratelimit.NewBucketWithRate(float64(bytesPerSecond), bytesPerSecond)}
}

func (l limiter) wrap(r io.Reader) io.Reader {
	if l.bucket == nil {
		return r
	}
	return ratelimit.Reader(r, l.bucket)
}

// readRange reads at most n bytes from r, stopping early at EOF.
func (l limiter) readRange(r io.Reader, n int64) ([]byte, error) {
	buf, err := io.ReadAll(io.LimitReader(l.wrap(r), n))
	if err != nil {
		return nil, err
	}
	return buf, nil
}
