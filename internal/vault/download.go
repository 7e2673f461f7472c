package vault

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Download fetches a vault archive and extracts it under destDir. If the
// destination already contains files, the download is skipped so repeated
// runs reuse the local copy.
func Download(ctx context.Context, info DatasetInfo, destDir string) error {
	if info.URL == "" {
		return fmt.Errorf("vault: dataset has no download URL")
	}
	entries, err := os.ReadDir(destDir)
	if err == nil && len(entries) > 0 {
		return nil
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("vault: create %s: %w", destDir, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return fmt.Errorf("vault: build request for %s: %w", info.URL, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("vault: download %s: %w", info.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vault: download %s: unexpected status %s", info.URL, resp.Status)
	}

	archive, err := os.CreateTemp("", "vault-*.zip")
	if err != nil {
		return fmt.Errorf("vault: create temp archive: %w", err)
	}
	defer os.Remove(archive.Name())
	defer archive.Close()

	if _, err := io.Copy(archive, resp.Body); err != nil {
		return fmt.Errorf("vault: write archive: %w", err)
	}
	return unzip(archive.Name(), destDir)
}

// unzip extracts a zip archive into destDir, rejecting entries that would
// escape it.
func unzip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("vault: open archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("vault: archive entry %q escapes destination", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("vault: open archive entry %q: %w", f.Name, err)
	}
	defer src.Close()
	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("vault: extract %q: %w", f.Name, err)
	}
	return nil
}
