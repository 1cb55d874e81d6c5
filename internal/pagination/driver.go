// Package pagination drives the two upstream pagination protocols to
// completion.
//
// v1 endpoints return a bare array and hand the continuation token back out of
// band (the Next-Page-Key response header); every request repeats the initial
// query. v2 returns the token inside the body, and follow-up requests carry
// nothing but the token.
package pagination

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/StinkyLord/dynatrace-topology-builder/internal/extract"
)

// DefaultMaxPages bounds a single pagination run.
const DefaultMaxPages = 1000

// NextPageKeyParam is the query parameter carrying the continuation token.
const NextPageKeyParam = "nextPageKey"

// Request describes one page request.
type Request struct {
	Path  string
	Query url.Values
}

// Response is one fetched page. NextPageKey is the out-of-band continuation
// token (v1); it is empty for v2, whose token lives in Body.
type Response struct {
	Body        []byte
	NextPageKey string
}

// Fetcher retrieves a single page. Transport concerns (auth, retries,
// timeouts) belong to the implementation.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// PaginationLimitError is returned when a continuation token is still present
// after MaxPages pages.
type PaginationLimitError struct {
	Path     string
	MaxPages int
	Records  int
}

func (e *PaginationLimitError) Error() string {
	return fmt.Sprintf("pagination of %s did not finish within %d pages (%d records so far)", e.Path, e.MaxPages, e.Records)
}

// Result holds the pages of one pagination run in fetch order.
type Result struct {
	Version extract.APIVersion
	Pages   []*extract.Page
}

// Records returns the number of entity records over all pages.
func (r *Result) Records() int {
	n := 0
	for _, p := range r.Pages {
		n += len(p.Entities)
	}
	return n
}

// Driver runs pagination loops against a Fetcher.
type Driver struct {
	Fetcher  Fetcher
	MaxPages int // DefaultMaxPages when <= 0
	Logger   *zap.Logger
}

// New creates a Driver with the default page ceiling.
func New(fetcher Fetcher, logger *zap.Logger) *Driver {
	return &Driver{Fetcher: fetcher, MaxPages: DefaultMaxPages, Logger: logger}
}

// FetchV1 pages through a v1 endpoint. query (e.g. relativeTime, pageSize) is
// sent unchanged on every request; from the second request on the
// continuation token is added to it.
func (d *Driver) FetchV1(ctx context.Context, path string, query url.Values) (*Result, error) {
	return d.run(ctx, path, query, extract.V1, func(_ *extract.Page, resp *Response) url.Values {
		if resp.NextPageKey == "" {
			return nil
		}
		next := cloneValues(query)
		next.Set(NextPageKeyParam, resp.NextPageKey)
		return next
	})
}

// FetchV2 pages through the v2 entities endpoint. The first request carries
// query; every later request carries only the continuation token from the
// previous body.
func (d *Driver) FetchV2(ctx context.Context, path string, query url.Values) (*Result, error) {
	return d.run(ctx, path, query, extract.V2, func(page *extract.Page, _ *Response) url.Values {
		if page.NextPageKey == "" {
			return nil
		}
		return url.Values{NextPageKeyParam: {page.NextPageKey}}
	})
}

// nextFunc returns the query of the following request, or nil when the run is
// complete.
type nextFunc func(page *extract.Page, resp *Response) url.Values

func (d *Driver) run(ctx context.Context, path string, query url.Values, version extract.APIVersion, next nextFunc) (*Result, error) {
	maxPages := d.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	log := d.logger().With(zap.String("path", path), zap.Stringer("api", version))

	result := &Result{Version: version}
	q := cloneValues(query)
	total := 0

	for n := 1; ; n++ {
		resp, err := d.Fetcher.Fetch(ctx, Request{Path: path, Query: q})
		if err != nil {
			return nil, fmt.Errorf("fetch page %d of %s: %w", n, path, err)
		}

		page, err := extract.ParsePage(resp.Body, version)
		if err != nil {
			return nil, fmt.Errorf("page %d of %s: %w", n, path, err)
		}
		result.Pages = append(result.Pages, page)
		total += len(page.Entities)
		log.Info("Fetched page",
			zap.Int("page", n),
			zap.Int("records", len(page.Entities)),
			zap.Int("total", total))

		q = next(page, resp)
		if q == nil {
			return result, nil
		}
		if n >= maxPages {
			return nil, &PaginationLimitError{Path: path, MaxPages: maxPages, Records: total}
		}
	}
}

func (d *Driver) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
