package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/bft-labs/rtcshare/internal/adapters/httpapi"
	"github.com/bft-labs/rtcshare/internal/metrics"
	"github.com/bft-labs/rtcshare/pkg/chunked"
	"github.com/bft-labs/rtcshare/pkg/log"
	"github.com/bft-labs/rtcshare/pkg/recordstream"
	"github.com/bft-labs/rtcshare/pkg/source"
)

const (
	formatAuto                = "auto"
	formatJSONL               = "jsonl"
	formatQJB1                = "qjb1"
	formatPositionDecodeField = "position-decode-field"
)

// container is the subset of the record stream clients the header and
// frame commands need.
type container interface {
	header(ctx context.Context) (interface{}, error)
	numFrames(ctx context.Context) (int, error)
	frame(ctx context.Context, i int, w io.Writer) error
	Close() error
}

func addStreamFlags(c *cli, cmd *cobra.Command, format *string) {
	f := cmd.Flags()
	f.StringVar(format, "format", formatAuto, "container format: auto, jsonl, qjb1 or position-decode-field")
	f.IntVar(&c.cfg.ChunkSize, "chunk-size", c.cfg.ChunkSize, "bytes per range request (0 uses the container default)")
	f.IntVar(&c.cfg.DownloadBPS, "download-bps", c.cfg.DownloadBPS, "download rate limit in bytes per second (0 disables)")
	f.DurationVar(&c.cfg.HTTPTimeout, "timeout", c.cfg.HTTPTimeout, "timeout of a single HTTP range request")
	f.StringVar(&c.cfg.S3Region, "s3-region", c.cfg.S3Region, "region of s3:// sources")
	f.StringVar(&c.cfg.S3Endpoint, "s3-endpoint", c.cfg.S3Endpoint, "endpoint override of s3:// sources")
	f.BoolVar(&c.cfg.S3PathStyle, "s3-path-style", c.cfg.S3PathStyle, "use path style addressing for s3:// sources")
}

func newHeaderCommand(c *cli) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "header <uri>",
		Short: "Print the header of a record container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()
			reg := prometheus.NewRegistry()
			ct, err := c.open(ctx, args[0], format, metrics.New(reg))
			if err != nil {
				return err
			}
			defer ct.Close()
			defer c.logFetchStats(reg)

			h, err := ct.header(ctx)
			if err != nil {
				return fmt.Errorf("read header: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(h)
		},
	}
	addStreamFlags(c, cmd, &format)
	return cmd
}

func newFrameCommand(c *cli) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "frame <uri> <index>",
		Short: "Write one frame of a record container to stdout",
		Long: "Write one frame of a record container to stdout. QJB1 frames are written\n" +
			"as raw image bytes; JSONL and position decode field frames as JSON.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd); err != nil {
				return err
			}
			i, err := strconv.Atoi(args[1])
			if err != nil || i < 0 {
				return fmt.Errorf("invalid frame index %q", args[1])
			}
			ctx := cmd.Context()
			reg := prometheus.NewRegistry()
			ct, err := c.open(ctx, args[0], format, metrics.New(reg))
			if err != nil {
				return err
			}
			defer ct.Close()
			defer c.logFetchStats(reg)

			n, err := ct.numFrames(ctx)
			if err != nil {
				return fmt.Errorf("read header: %w", err)
			}
			if i >= n {
				return fmt.Errorf("frame %d out of range, container has %d frames", i, n)
			}
			return ct.frame(ctx, i, cmd.OutOrStdout())
		},
	}
	addStreamFlags(c, cmd, &format)
	return cmd
}

// open resolves uri and wraps it in the client for format.
func (c *cli) open(ctx context.Context, uri, format string, obs chunked.Observer) (container, error) {
	fetcher, path, err := c.resolve(ctx, uri)
	if err != nil {
		return nil, err
	}

	opts := []recordstream.Option{
		recordstream.WithLogger(log.NewZerologAdapterWithLogger(c.log)),
		recordstream.WithReaderOptions(chunked.WithObserver(obs)),
	}
	if c.cfg.ChunkSize > 0 {
		opts = append(opts, recordstream.WithChunkSize(int64(c.cfg.ChunkSize)))
	}

	if format == formatAuto || format == "" {
		format = detectFormat(path)
	}
	switch format {
	case formatJSONL:
		return jsonlContainer{recordstream.NewJSONLClient(fetcher, path, opts...)}, nil
	case formatQJB1:
		return qjb1Container{recordstream.NewQJB1Client(fetcher, path, opts...)}, nil
	case formatPositionDecodeField:
		return positionContainer{recordstream.NewPositionDecodeFieldClient(fetcher, path, opts...)}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// resolve extends source.Resolve with rtcshare://host:port/path, which
// reads from a running service's HTTP API.
func (c *cli) resolve(ctx context.Context, uri string) (chunked.Fetcher, string, error) {
	if rest, ok := strings.CutPrefix(uri, "rtcshare://"); ok {
		host, path, _ := strings.Cut(rest, "/")
		if host == "" || path == "" {
			return nil, "", fmt.Errorf("invalid uri %q, want rtcshare://host:port/path", uri)
		}
		client := httpapi.NewClient("http://"+host, &http.Client{Timeout: c.cfg.HTTPTimeout})
		return source.NewRPC(client), path, nil
	}
	return source.Resolve(ctx, uri, c.cfg.SourceConfig())
}

// logFetchStats writes the chunk counters gathered from reg at debug level.
func (c *cli) logFetchStats(reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		c.log.Debug().Err(err).Msg("gather fetch stats")
		return
	}
	ev := c.log.Debug()
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				ev = ev.Float64(mf.GetName(), m.GetCounter().GetValue())
			}
		}
	}
	ev.Msg("fetch stats")
}

func detectFormat(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".qjb1") {
		return formatQJB1
	}
	return formatJSONL
}

type jsonlContainer struct{ *recordstream.JSONLClient }

func (j jsonlContainer) header(ctx context.Context) (interface{}, error) {
	return j.Header(ctx)
}

func (j jsonlContainer) numFrames(ctx context.Context) (int, error) {
	return j.NumFrames(ctx)
}

func (j jsonlContainer) frame(ctx context.Context, i int, w io.Writer) error {
	b, err := j.FrameBytes(ctx, i)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

type qjb1Container struct{ *recordstream.QJB1Client }

func (q qjb1Container) header(ctx context.Context) (interface{}, error) {
	return q.Header(ctx)
}

func (q qjb1Container) numFrames(ctx context.Context) (int, error) {
	return q.NumFrames(ctx)
}

func (q qjb1Container) frame(ctx context.Context, i int, w io.Writer) error {
	b, err := q.Frame(ctx, i)
	if err != nil {
		return err
	}
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		return fmt.Errorf("refusing to write binary frame to a terminal, redirect stdout")
	}
	_, err = w.Write(b)
	return err
}

type positionContainer struct {
	*recordstream.PositionDecodeFieldClient
}

func (p positionContainer) header(ctx context.Context) (interface{}, error) {
	return p.Header(ctx)
}

func (p positionContainer) numFrames(ctx context.Context) (int, error) {
	return p.NumFrames(ctx)
}

func (p positionContainer) frame(ctx context.Context, i int, w io.Writer) error {
	fr, err := p.Frame(ctx, i)
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(struct {
		Indices []uint16 `json:"indices"`
		Values  []uint16 `json:"values"`
	}{fr.Indices, fr.Values})
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
