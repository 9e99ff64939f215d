// Package source provides byte-range fetchers for the chunked reader.
//
// A fetcher returns bytes [start, end) of a named resource and may
// return fewer bytes at the end of it. The package covers local files,
// HTTP(S) servers honouring Range requests, S3 objects and remote
// rtcshare services reached through any request channel (HTTP API,
// relay or peer).
//
// # Usage
//
//	fetcher, path, err := source.Resolve(ctx, "https://example.org/data.jsonl", source.Config{})
//	if err != nil {
//	    return err
//	}
//	reader := chunked.NewReader(fetcher, path)
//
// Downloads can be paced with Config.BytesPerSecond, which shares one
// token bucket between all fetches of a fetcher.
package source
