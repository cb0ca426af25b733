package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bluewater-supply/partsync/internal/fetcher"
)

var pullOut string

var pullCmd = &cobra.Command{
	Use:   "pull <url>",
	Short: "Download a catalog file into data/catalogs",
	Long:  "Downloads a catalog over http(s) or ftp. HTTP downloads are ETag-aware: an unchanged remote file is not re-downloaded.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rawURL := args[0]

		dest := pullOut
		if dest == "" {
			name, err := remoteFileName(rawURL)
			if err != nil {
				return err
			}
			dest = filepath.Join(cfg.Data.CatalogsDir(), name)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return eris.Wrapf(err, "create catalogs dir %s", filepath.Dir(dest))
		}

		f, err := fetcher.ForURL(rawURL, fetcher.HTTPOptions{
			Timeout: cfg.Vendor.Timeout(),
		})
		if err != nil {
			return err
		}

		if hf, ok := f.(*fetcher.HTTPFetcher); ok {
			return pullHTTP(ctx, hf, rawURL, dest)
		}

		n, err := f.DownloadToFile(ctx, rawURL, dest)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Downloaded %s (%d bytes)\n", dest, n)
		return nil
	},
}

func init() {
	pullCmd.Flags().StringVar(&pullOut, "out", "", "destination path (default: data/catalogs/<name>)")
	rootCmd.AddCommand(pullCmd)
}

// pullHTTP downloads over HTTP with an ETag sidecar next to the
// destination, skipping the transfer when the remote file is unchanged.
func pullHTTP(ctx context.Context, hf *fetcher.HTTPFetcher, rawURL, dest string) error {
	sidecar := dest + ".etag"

	etag := ""
	if _, err := os.Stat(dest); err == nil {
		if data, rerr := os.ReadFile(sidecar); rerr == nil {
			etag = strings.TrimSpace(string(data))
		}
	}

	body, newETag, changed, err := hf.DownloadIfChanged(ctx, rawURL, etag)
	if err != nil {
		return err
	}
	if !changed {
		zap.L().Info("catalog unchanged upstream", zap.String("url", rawURL), zap.String("etag", etag))
		fmt.Fprintf(os.Stdout, "Unchanged: %s\n", dest)
		return nil
	}
	defer body.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "create %s", dest)
	}
	n, err := io.Copy(out, body)
	if err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "write %s", dest)
	}
	if err := out.Close(); err != nil {
		return eris.Wrapf(err, "close %s", dest)
	}

	if newETag != "" {
		if err := os.WriteFile(sidecar, []byte(newETag), 0o644); err != nil {
			zap.L().Warn("etag sidecar not written", zap.String("path", sidecar), zap.Error(err))
		}
	} else {
		_ = os.Remove(sidecar)
	}

	fmt.Fprintf(os.Stdout, "Downloaded %s (%d bytes)\n", dest, n)
	return nil
}

// remoteFileName derives the local file name from the URL path.
func remoteFileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "parse url %q", rawURL)
	}
	name := path.Base(u.Path)
	if strings.HasSuffix(u.Path, "/") || name == "" || name == "." || name == "/" {
		return "", eris.Errorf("cannot derive a file name from %s; use --out", rawURL)
	}
	return name, nil
}
