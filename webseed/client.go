// Package webseed fetches swarm content from HTTP servers (BEP 19), and presents such a server to a
// swarm as if it were an ordinary wire-protocol peer that has every piece.
package webseed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/RoaringBitmap/roaring"
	"github.com/anacrolix/log"
	"github.com/anacrolix/sync"
	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/anacrolix/swarmedge/segments"
	"github.com/anacrolix/swarmedge/swarm"
)

// How many consecutive bytes to allow discarding from responses. This number is based on
// https://archive.org/download/BloodyPitOfHorror/BloodyPitOfHorror.asr.srt. It seems that
// archive.org might be using a webserver implementation that refuses to do partial responses to
// small files.
const MaxDiscardBytes = 48 << 10

// A block within a piece, as named by wire-protocol requests.
type BlockRange struct {
	Index  int64
	Begin  int64
	Length int64
}

func (r BlockRange) String() string {
	return fmt.Sprintf("piece %v [%v, %v)", r.Index, r.Begin, r.Begin+r.Length)
}

type subRequest struct {
	url string
	// Relative to the start of the file at url.
	e segments.Extent
}

func (sr subRequest) rangeHeader() string {
	return fmt.Sprintf("bytes=%d-%d", sr.e.Start, sr.e.End()-1)
}

type Client struct {
	Logger     log.Logger
	HttpClient *http.Client
	Url        string
	// Sent with every request if not empty.
	UserAgent               string
	PathEscaper             PathEscaper
	ResponseBodyRateLimiter *rate.Limiter
	// Behave like environments that won't follow a cross-origin redirect for a request carrying a
	// Range header. Such a fetch resolves the final URL with a HEAD request and retries there once.
	SameOriginRedirectsOnly bool

	mu        sync.RWMutex
	info      *swarm.Info
	fileIndex segments.Index
	// The pieces we can request with the Url.
	pieces roaring.Bitmap
}

func NewClient(url string) *Client {
	return &Client{
		Logger:     log.Default.WithNames("webseed"),
		HttpClient: http.DefaultClient,
		Url:        url,
	}
}

func (me *Client) SetInfo(info swarm.Info) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.info = &info
	me.fileIndex = info.FileSegmentsIndex()
	me.pieces.Clear()
	me.pieces.AddRange(0, uint64(info.NumPieces()))
}

func (me *Client) Info() *swarm.Info {
	me.mu.RLock()
	defer me.mu.RUnlock()
	return me.info
}

// A copy of the pieces this webseed can serve.
func (me *Client) Pieces() *roaring.Bitmap {
	me.mu.RLock()
	defer me.mu.RUnlock()
	return me.pieces.Clone()
}

// Returns the URL for the given file index. This is assumed to be globally unique.
func (me *Client) UrlForFileIndex(fileIndex int) string {
	me.mu.RLock()
	defer me.mu.RUnlock()
	return me.urlForFile(me.info, fileIndex)
}

func (me *Client) urlForFile(info *swarm.Info, fileIndex int) string {
	return joinURL(me.Url, info.IsMultiFile(), info.Files[fileIndex].PathComponents(), me.PathEscaper)
}

func (me *Client) subRequests(r BlockRange) (ret []subRequest, err error) {
	me.mu.RLock()
	defer me.mu.RUnlock()
	if me.info == nil {
		return nil, ErrNoInfo
	}
	if r.Length <= 0 || r.Begin < 0 || r.Index < 0 {
		return nil, fmt.Errorf("bad block range: %v", r)
	}
	abs := segments.Extent{
		Start:  r.Index*me.info.PieceLength + r.Begin,
		Length: r.Length,
	}
	var located int64
	for i, e := range me.fileIndex.Locate(abs) {
		ret = append(ret, subRequest{
			url: me.urlForFile(me.info, i),
			e:   e,
		})
		located += e.Length
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoFileForRange, abs)
	}
	if located != r.Length {
		return nil, fmt.Errorf("range %v extends past end of content (%v)", abs, me.fileIndex.End())
	}
	return
}

var tracer = otel.Tracer("swarmedge.webseed")

// Fetches a block by issuing one ranged GET per file it spans. The sub-requests run concurrently
// and the first failure fails the whole fetch. The returned bytes are exactly the block.
func (me *Client) Fetch(ctx context.Context, r BlockRange) (_ []byte, err error) {
	blockFetches.Add(1)
	ctx, span := tracer.Start(
		ctx,
		"Client.Fetch",
		trace.WithAttributes(
			attribute.String("webseed.url", me.Url),
			attribute.Int64("webseed.block.index", r.Index),
			attribute.Int64("webseed.block.begin", r.Begin),
			attribute.Int64("webseed.block.length", r.Length),
		),
	)
	defer span.End()
	defer func() {
		if err != nil {
			blockFetchErrors.Add(1)
			var bre BadResponseError
			if errors.As(err, &bre) {
				span.SetAttributes(attribute.Int("webseed.response.status_code", bre.StatusCode))
			}
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	parts, err := me.subRequests(r)
	if err != nil {
		return
	}
	span.SetAttributes(attribute.Int("webseed.fetch.parts", len(parts)))
	me.Logger.Levelf(log.Debug, "fetching %v (%v) from %v in %v parts",
		r, humanize.Bytes(uint64(r.Length)), me.Url, len(parts))
	bodies := make([][]byte, len(parts))
	eg, ctx := errgroup.WithContext(ctx)
	for i, part := range parts {
		eg.Go(func() (err error) {
			bodies[i], err = me.fetchPart(ctx, part)
			if err != nil {
				err = fmt.Errorf("reading %q at %q: %w", part.url, part.rangeHeader(), err)
			}
			return
		})
	}
	err = eg.Wait()
	if err != nil {
		return
	}
	if len(bodies) == 1 {
		return bodies[0], nil
	}
	ret := make([]byte, 0, r.Length)
	for _, b := range bodies {
		ret = append(ret, b...)
	}
	if int64(len(ret)) != r.Length {
		return nil, fmt.Errorf("assembled %v bytes, expected %v", len(ret), r.Length)
	}
	return ret, nil
}

func (me *Client) fetchPart(ctx context.Context, part subRequest) ([]byte, error) {
	b, err := me.get(ctx, part.url, part)
	if err == nil || !me.SameOriginRedirectsOnly || !errors.Is(err, errCrossOriginRedirect) {
		return b, err
	}
	redirectProbes.Add(1)
	resolved, probeErr := me.resolveRedirects(ctx, part.url)
	if probeErr != nil {
		return nil, fmt.Errorf("resolving redirects after %w: %w", err, probeErr)
	}
	if resolved == part.url {
		return nil, err
	}
	me.Logger.Levelf(log.Debug, "retrying %q at resolved url %q", part.url, resolved)
	return me.get(ctx, resolved, part)
}

func (me *Client) baseHttpClient() *http.Client {
	if me.HttpClient == nil {
		return http.DefaultClient
	}
	return me.HttpClient
}

func (me *Client) rangedHttpClient() *http.Client {
	hc := me.baseHttpClient()
	if !me.SameOriginRedirectsOnly {
		return hc
	}
	restricted := *hc
	restricted.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		orig := via[0].URL
		if req.Header.Get("Range") != "" && (req.URL.Scheme != orig.Scheme || req.URL.Host != orig.Host) {
			return errCrossOriginRedirect
		}
		if hc.CheckRedirect != nil {
			return hc.CheckRedirect(req, via)
		}
		return nil
	}
	return &restricted
}

// Follows redirects for url with a HEAD request and returns where they end up.
func (me *Client) resolveRedirects(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", err
	}
	me.setHeaders(req)
	resp, err := me.baseHttpClient().Do(req)
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	return resp.Request.URL.String(), nil
}

func (me *Client) setHeaders(req *http.Request) {
	if me.UserAgent != "" {
		req.Header.Set("User-Agent", me.UserAgent)
	}
}

func (me *Client) get(ctx context.Context, url string, part subRequest) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	me.setHeaders(req)
	req.Header.Set("Range", part.rangeHeader())
	httpSubRequests.Add(1)
	resp, err := me.rangedHttpClient().Do(req)
	if err != nil {
		return nil, err
	}
	return me.recvPartResult(ctx, part, resp)
}

// Warn about bad content-lengths.
func (me *Client) checkContentLength(resp *http.Response, expectedLen int64) {
	if resp.ContentLength == -1 {
		return
	}
	switch resp.Header.Get("Content-Encoding") {
	case "identity", "":
	default:
		return
	}
	if resp.ContentLength != expectedLen {
		me.Logger.Levelf(log.Warning,
			"unexpected identity response Content-Length value %v (expected %v) for %q",
			resp.ContentLength, expectedLen, resp.Request.URL)
	}
}

// Reads the part in full. All expected bytes must be returned or there will an error returned.
func (me *Client) recvPartResult(ctx context.Context, part subRequest, resp *http.Response) (_ []byte, err error) {
	defer resp.Body.Close()
	var body io.Reader = resp.Body
	if me.ResponseBodyRateLimiter != nil {
		body = rateLimitedReader{ctx: ctx, l: me.ResponseBodyRateLimiter, r: body}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, BadResponseError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        resp.Request.URL.String(),
		}
	}
	if resp.StatusCode == http.StatusOK {
		// The response is from the beginning.
		me.checkContentLength(resp, part.e.End())
		discard := part.e.Start
		if discard > MaxDiscardBytes {
			return nil, fmt.Errorf("resp status ok but requested range %q", part.rangeHeader())
		}
		if discard != 0 {
			me.Logger.Levelf(log.Debug, "resp status ok but requested range [url=%q, range=%q]",
				resp.Request.URL, part.rangeHeader())
		}
		_, err = io.CopyN(io.Discard, body, discard)
		if err != nil {
			return nil, fmt.Errorf("error discarding bytes from http ok response: %w", err)
		}
		// Because the reply is not a partial aware response, we limit the body reader
		// intentionally.
		buf := make([]byte, part.e.Length)
		_, err = io.ReadFull(body, buf)
		return buf, err
	}
	// The response should be just as long as we requested.
	me.checkContentLength(resp, part.e.Length)
	b, err := io.ReadAll(io.LimitReader(body, part.e.Length+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) != part.e.Length {
		return nil, fmt.Errorf("got %v bytes, expected %v", len(b), part.e.Length)
	}
	return b, nil
}
