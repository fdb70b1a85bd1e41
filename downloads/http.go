// Package downloads fetches model and runtime files over HTTP and unpacks
// single files out of release archives.
package downloads

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultRetryAttempts is the number of times to retry a failed download.
	DefaultRetryAttempts = 3
	// DefaultRetryDelay is the delay before the first retry; it doubles per attempt.
	DefaultRetryDelay = 2 * time.Second

	reportInterval = 200 * time.Millisecond
)

// retryDelay is a variable so tests can shorten it.
var retryDelay = DefaultRetryDelay

// Fetch downloads url to destPath. Data lands in destPath+".part" first and is
// renamed into place once complete; an existing .part is resumed with a Range
// request.
func Fetch(ctx context.Context, url, destPath string, progressCb ProgressCallback) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	partPath := destPath + ".part"

	var existing int64
	if stat, err := os.Stat(partPath); err == nil {
		existing = stat.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if existing > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existing))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusOK:
		existing = 0
		flags |= os.O_TRUNC
	case http.StatusPartialContent:
		flags |= os.O_APPEND
	default:
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	total := int64(-1)
	if resp.ContentLength >= 0 {
		total = resp.ContentLength + existing
	}

	out, err := os.OpenFile(partPath, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}

	pw := &progressWriter{
		p:  Progress{Name: filepath.Base(destPath), Downloaded: existing, Total: total},
		cb: progressCb,
	}
	_, copyErr := io.Copy(io.MultiWriter(out, pw), resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		return fmt.Errorf("failed to download %s: %w", url, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to write %s: %w", partPath, closeErr)
	}
	pw.report(true)

	if total >= 0 && pw.p.Downloaded != total {
		return fmt.Errorf("short download: got %d of %d bytes", pw.p.Downloaded, total)
	}
	return os.Rename(partPath, destPath)
}

// FetchWithRetry calls Fetch up to DefaultRetryAttempts times with
// exponential backoff. Cancellation is never retried.
func FetchWithRetry(ctx context.Context, url, destPath string, progressCb ProgressCallback) error {
	var lastErr error
	delay := retryDelay

	for attempt := 1; attempt <= DefaultRetryAttempts; attempt++ {
		lastErr = Fetch(ctx, url, destPath, progressCb)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < DefaultRetryAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("download failed after %d attempts: %w", DefaultRetryAttempts, lastErr)
}

type progressWriter struct {
	p    Progress
	cb   ProgressCallback
	last time.Time
}

func (w *progressWriter) Write(b []byte) (int, error) {
	w.p.Downloaded += int64(len(b))
	w.report(false)
	return len(b), nil
}

func (w *progressWriter) report(force bool) {
	if w.cb == nil {
		return
	}
	if !force && time.Since(w.last) < reportInterval {
		return
	}
	w.last = time.Now()
	w.cb(w.p)
}
