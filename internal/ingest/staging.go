package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/amillerrr/lms-pipeline/pkg/models"
)

// Content types accepted for staged uploads. Browsers often send
// octet-stream for large files, so the sniffed type is the gate.
var allowedSniffedTypes = map[string]bool{
	"video/mp4":                true,
	"video/webm":               true,
	"application/octet-stream": true,
}

var extByContentType = map[string]string{
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
}

// StagedFile is a fully received upload sitting in the staging directory.
type StagedFile struct {
	Path        string
	Size        int64
	ContentType string
	Ext         string
}

// Stager writes inbound upload streams to bounded temporary files.
type Stager struct {
	dir      string
	maxBytes int64
	log      *slog.Logger
}

// NewStager creates a Stager rooted at dir with a hard per-file size cap.
func NewStager(dir string, maxBytes int64, log *slog.Logger) *Stager {
	return &Stager{dir: dir, maxBytes: maxBytes, log: log}
}

// Stage drains the stream into a temp file, enforcing the size cap and
// sniffing the content type from the first 512 bytes. The caller owns the
// returned file and must Cleanup it on every exit path.
func (s *Stager) Stage(ctx context.Context, r io.Reader, declaredType string) (*StagedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(s.dir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}
	tmpPath := tmpFile.Name()

	cleanup := func() {
		tmpFile.Close()
		s.Cleanup(tmpPath)
	}

	// Sniff before writing anything remote-facing.
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		cleanup()
		return nil, fmt.Errorf("failed to read upload header: %w", err)
	}
	head = head[:n]
	if n == 0 {
		cleanup()
		return nil, models.ErrMissingFile
	}

	sniffed := http.DetectContentType(head)
	if !allowedSniffedTypes[sniffed] {
		cleanup()
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidContentType, sniffed)
	}

	if _, err := tmpFile.Write(head); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to write staging file: %w", err)
	}

	// Copy the remainder under the cap. One extra byte detects overflow.
	remaining := s.maxBytes - int64(n)
	if remaining < 0 {
		cleanup()
		return nil, models.ErrFileTooLarge
	}
	written, err := io.Copy(tmpFile, io.LimitReader(r, remaining+1))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to write staging file: %w", err)
	}
	if written > remaining {
		cleanup()
		return nil, models.ErrFileTooLarge
	}

	if err := tmpFile.Close(); err != nil {
		s.Cleanup(tmpPath)
		return nil, fmt.Errorf("failed to close staging file: %w", err)
	}

	contentType := declaredType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = sniffed
	}

	ext := extByContentType[contentType]
	if ext == "" {
		ext = ".mp4"
	}

	return &StagedFile{
		Path:        tmpPath,
		Size:        int64(n) + written,
		ContentType: contentType,
		Ext:         ext,
	}, nil
}

// Cleanup removes a staged file. Safe to call on every exit path.
func (s *Stager) Cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warn("Failed to remove staged file", "path", path, "error", err)
	}
}
