// Package fetcher downloads catalog artifacts (PDF price books, CSV
// supplements) from vendor distribution points over HTTP or FTP.
package fetcher

import (
	"context"
	"io"
	"net/url"

	"github.com/rotisserie/eris"
)

// Fetcher defines the interface for downloading remote catalog files.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// ForURL returns a Fetcher matching the URL scheme. HTTP fetchers are
// built from opts; FTP fetchers inherit only the timeout.
func ForURL(rawURL string, opts HTTPOptions) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}

	switch u.Scheme {
	case "http", "https":
		return NewHTTPFetcher(opts), nil
	case "ftp":
		return NewFTPFetcher(FTPOptions{Timeout: opts.Timeout}), nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q in %s", u.Scheme, rawURL)
	}
}
