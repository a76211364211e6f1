// Package modelstore resolves the on-disk model directory and downloads
// model artifacts with checksum verification and atomic staging.
package modelstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
)

// ErrChecksumMismatch is returned when a downloaded artifact's SHA-256
// does not match the expected value.
var ErrChecksumMismatch = errors.New("modelstore: checksum mismatch")

// ErrDownloadFailed wraps any transport or I/O failure encountered after
// the staging file was created.
type ErrDownloadFailed struct{ Err error }

func (e *ErrDownloadFailed) Error() string { return fmt.Sprintf("modelstore: download failed: %v", e.Err) }
func (e *ErrDownloadFailed) Unwrap() error { return e.Err }

const downloadChunkSize = 1 << 20 // 1 MiB streaming-hash block size

// ResolveDir returns the models directory to use: overrideDir if non-empty,
// else $XDG_DATA_HOME/srag/models, else ~/.local/share/srag/models.
func ResolveDir(overrideDir string) string {
	if overrideDir != "" {
		return overrideDir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "srag", "models")
	}
	home := os.Getenv("HOME")
	return filepath.Join(home, ".local", "share", "srag", "models")
}

// Exists reports whether name is already present under dir.
func Exists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}

// Download fetches url into dir/name, verifying its SHA-256 against
// expectedSHA256 (skipped when empty) before atomically renaming the
// staging file into place. If the final file already exists, it returns its
// path without touching the network. Progress is emitted to logger, never
// to the RPC channel.
func Download(ctx context.Context, logger *slog.Logger, dir, name, url, expectedSHA256 string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("modelstore: create dir: %w", err)
	}

	finalPath := filepath.Join(dir, name)
	if _, err := os.Stat(finalPath); err == nil {
		return finalPath, nil
	}

	stagingPath := finalPath + ".download"

	if err := fetch(ctx, logger, url, name, stagingPath); err != nil {
		_ = os.Remove(stagingPath)
		return "", &ErrDownloadFailed{Err: err}
	}

	if expectedSHA256 != "" {
		actual, err := sha256File(stagingPath)
		if err != nil {
			_ = os.Remove(stagingPath)
			return "", &ErrDownloadFailed{Err: err}
		}
		if !strings.EqualFold(actual, expectedSHA256) {
			_ = os.Remove(stagingPath)
			return "", fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, expectedSHA256, actual)
		}
	}

	if err := os.Rename(stagingPath, finalPath); err != nil {
		_ = os.Remove(stagingPath)
		return "", &ErrDownloadFailed{Err: err}
	}

	logger.Info("model downloaded", "name", name, "path", finalPath)
	return finalPath, nil
}

func fetch(ctx context.Context, logger *slog.Logger, url, name, stagingPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s fetching %s", resp.Status, url)
	}

	out, err := os.Create(stagingPath)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	bar := progressbar.DefaultBytes(resp.ContentLength, "downloading "+name)
	logger.Info("downloading model", "name", name, "url", url)

	if _, err := io.Copy(io.MultiWriter(out, bar), resp.Body); err != nil {
		return err
	}
	return nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	buf := make([]byte, downloadChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
