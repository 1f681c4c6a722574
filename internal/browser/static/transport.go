// internal/browser/static/transport.go
package static

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

var brotliReaders = sync.Pool{
	New: func() any { return brotli.NewReader(nil) },
}

// decompressingTransport advertises br/gzip/deflate and transparently
// decodes responses so the HTML parser always sees plain text.
type decompressingTransport struct {
	base http.RoundTripper
}

func newDecompressingTransport(base http.RoundTripper) *decompressingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &decompressingTransport{base: base}
}

func (t *decompressingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		// Setting the header ourselves disables net/http's implicit gzip handling.
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", "br, gzip, deflate")
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := decodeBody(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return resp, nil
}

type decodedBody struct {
	io.Reader
	closers []func() error
}

func (b *decodedBody) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c())
	}
	b.closers = nil
	return errors.Join(errs...)
}

// decodeBody unwraps each Content-Encoding layer, last applied first.
func decodeBody(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encodings := resp.Header.Values("Content-Encoding")
	if len(encodings) == 0 {
		return nil
	}

	original := resp.Body
	body := &decodedBody{Reader: original, closers: []func() error{original.Close}}
	for i := len(encodings) - 1; i >= 0; i-- {
		switch enc := strings.ToLower(strings.TrimSpace(encodings[i])); enc {
		case "", "identity":
			continue
		case "gzip":
			zr, err := gzip.NewReader(body.Reader)
			if err != nil {
				return fmt.Errorf("gzip: %w", err)
			}
			body.Reader = zr
			body.closers = append([]func() error{zr.Close}, body.closers...)
		case "deflate":
			dr, err := newDeflateReader(body.Reader)
			if err != nil {
				return fmt.Errorf("deflate: %w", err)
			}
			body.Reader = dr
			body.closers = append([]func() error{dr.Close}, body.closers...)
		case "br":
			br := brotliReaders.Get().(*brotli.Reader)
			if err := br.Reset(body.Reader); err != nil {
				brotliReaders.Put(br)
				return fmt.Errorf("brotli: %w", err)
			}
			body.Reader = br
			body.closers = append([]func() error{func() error {
				brotliReaders.Put(br)
				return nil
			}}, body.closers...)
		default:
			return fmt.Errorf("unsupported Content-Encoding %q", enc)
		}
	}

	resp.Body = body
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// newDeflateReader accepts both zlib-wrapped and raw deflate streams, since
// servers disagree on what "deflate" means.
func newDeflateReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(2)
	if err == nil && header[0]&0x0f == 8 && (uint16(header[0])<<8|uint16(header[1]))%31 == 0 {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}
