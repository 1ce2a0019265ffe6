// Package iplist downloads newline-delimited "best IP" lists and keeps the
// entries that are strict IPv4 literals.
package iplist

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// maxBodySize bounds how large a source list may be. A longer body is an
// error rather than a silently cut list.
const maxBodySize = 4 << 20

// Fetcher downloads IP lists over HTTP.
type Fetcher struct {
	client  *http.Client
	log     logr.Logger
	maxBody int64
}

// NewFetcher returns a Fetcher. A zero timeout leaves requests bounded only
// by the context.
func NewFetcher(log logr.Logger, timeout time.Duration) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &Fetcher{
		client:  &http.Client{Transport: transport, Timeout: timeout},
		log:     log,
		maxBody: maxBodySize,
	}
}

// Result is a downloaded list after filtering.
type Result struct {
	Addrs   []netip.Addr
	Lines   int // non-blank lines seen
	Dropped int // lines that were not IPv4 literals
}

// Fetch downloads url and returns its valid IPv4 entries in source order.
// Any non-2xx status is an error.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("iplist: build request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("iplist: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("iplist: GET %s returned status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("iplist: read %s: %w", url, err)
	}
	if int64(len(data)) > f.maxBody {
		return nil, fmt.Errorf("iplist: %s is larger than %d bytes", url, f.maxBody)
	}

	res, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("iplist: read %s: %w", url, err)
	}
	f.log.V(1).Info("fetched list", "url", url, "lines", res.Lines, "valid", len(res.Addrs), "dropped", res.Dropped)
	return res, nil
}

// Parse splits r on newlines, trims each line and keeps the lines that are
// IPv4 literals. Invalid lines are counted and dropped.
func Parse(r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		res.Lines++
		addr, ok := ParseIPv4(line)
		if !ok {
			res.Dropped++
			continue
		}
		res.Addrs = append(res.Addrs, addr)
	}
	return res, nil
}

// ParseIPv4 parses s as a dotted-quad IPv4 address. Leading zeros, IPv6
// (including IPv4-mapped forms), zones and ports are rejected.
func ParseIPv4(s string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, false
	}
	return addr, true
}

// Truncate returns the first limit addresses. A non-positive limit yields
// nothing.
func Truncate(addrs []netip.Addr, limit int) []netip.Addr {
	if limit <= 0 {
		return nil
	}
	if len(addrs) > limit {
		return addrs[:limit]
	}
	return addrs
}
