// Package chunked reads byte ranges of a remote resource through a cache
// of fixed-size chunks.
//
// Each chunk is fetched at most once per Reader while it is in flight:
// concurrent requests for the same chunk share one fetch. Successful
// chunks stay cached for the life of the Reader. After a range is served
// the Reader fetches the following chunk in the background so that
// sequential scans rarely wait.
//
// Fetch failures are reported as errors matching domain.ErrUnavailable;
// callers decide whether to retry or treat them as end of data.
//
// # Usage
//
//	r := chunked.NewReader(src, "videos/a.qjb1", chunked.WithChunkSize(4_000_000))
//	defer r.Close()
//	b, err := r.GetRange(ctx, 100, 2_000_000)
//	if errors.Is(err, domain.ErrUnavailable) { ... }
package chunked
