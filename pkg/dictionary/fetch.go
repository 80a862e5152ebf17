package dictionary

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DefaultReleaseURL is the GitHub API endpoint of the latest
// jmdict-simplified release.
const DefaultReleaseURL = "https://api.github.com/repos/scriptin/jmdict-simplified/releases/latest"

// Fetcher downloads the English common JMdict file on first use.
type Fetcher struct {
	Client *http.Client
	// ReleaseURL defaults to DefaultReleaseURL.
	ReleaseURL string
	Logger     *slog.Logger
}

// Ensure makes sure a dictionary exists at path, downloading and unpacking
// the latest release when it does not.
func (f *Fetcher) Ensure(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	f.logger().Info("dictionary not found, downloading", "path", path)
	assetURL, name, err := f.latestAssetURL(ctx)
	if err != nil {
		return fmt.Errorf("find latest dictionary release: %w", err)
	}
	f.logger().Info("downloading dictionary", "url", assetURL)
	return f.downloadAndExtract(ctx, assetURL, path, strings.HasSuffix(name, ".tgz"))
}

// latestAssetURL returns the download URL and file name of the English common
// subset, packed either as .json.tgz or as a bare .json.gz.
func (f *Fetcher) latestAssetURL(ctx context.Context) (string, string, error) {
	api := f.ReleaseURL
	if api == "" {
		api = DefaultReleaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api, nil)
	if err != nil {
		return "", "", err
	}
	// GitHub rejects API requests without a User-Agent.
	req.Header.Set("User-Agent", "lingomorph-cli")

	resp, err := f.client().Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("github api returned status: %s", resp.Status)
	}

	var release struct {
		Assets []struct {
			Name               string `json:"name"`
			BrowserDownloadURL string `json:"browser_download_url"`
		} `json:"assets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", "", err
	}
	for _, asset := range release.Assets {
		if strings.Contains(asset.Name, "jmdict-eng-common") &&
			(strings.HasSuffix(asset.Name, ".json.tgz") || strings.HasSuffix(asset.Name, ".json.gz")) {
			return asset.BrowserDownloadURL, asset.Name, nil
		}
	}
	return "", "", fmt.Errorf("no suitable dictionary asset found in latest release")
}

// downloadAndExtract writes the JSON at url to destPath. A tarball yields its
// first .json member, otherwise the body is a single gzip-compressed file.
func (f *Fetcher) downloadAndExtract(ctx context.Context, url, destPath string, tarball bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	if dir := filepath.Dir(destPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	if !tarball {
		return writeAtomic(destPath, gz)
	}

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("no json file found in downloaded archive")
		}
		if err != nil {
			return fmt.Errorf("read tar archive: %w", err)
		}
		if header.Typeflag != tar.TypeReg || !strings.HasSuffix(header.Name, ".json") {
			continue
		}
		return writeAtomic(destPath, tr)
	}
}

func writeAtomic(path string, r io.Reader) error {
	tmp := path + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("write dictionary: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}
