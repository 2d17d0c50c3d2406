package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/amillerrr/lms-pipeline/pkg/models"
)

func newTestStager(t *testing.T, maxBytes int64) *Stager {
	t.Helper()
	return NewStager(t.TempDir(), maxBytes, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStage(t *testing.T) {
	s := newTestStager(t, 1<<20)

	staged, err := s.Stage(context.Background(), bytes.NewReader(videoBytes(1000)), "video/mp4")
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	defer s.Cleanup(staged.Path)

	if staged.Size != 1000 {
		t.Errorf("Size = %d, want 1000", staged.Size)
	}
	if staged.ContentType != "video/mp4" {
		t.Errorf("ContentType = %q, want video/mp4", staged.ContentType)
	}
	if staged.Ext != ".mp4" {
		t.Errorf("Ext = %q, want .mp4", staged.Ext)
	}
}

func TestStage_SmallFile(t *testing.T) {
	// Files shorter than the sniff window still stage in full.
	s := newTestStager(t, 1<<20)

	staged, err := s.Stage(context.Background(), bytes.NewReader(videoBytes(10)), "")
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	defer s.Cleanup(staged.Path)

	if staged.Size != 10 {
		t.Errorf("Size = %d, want 10", staged.Size)
	}
	if staged.ContentType != "application/octet-stream" {
		t.Errorf("ContentType = %q, want sniffed octet-stream", staged.ContentType)
	}
}

func TestStage_Empty(t *testing.T) {
	s := newTestStager(t, 1<<20)

	if _, err := s.Stage(context.Background(), bytes.NewReader(nil), "video/mp4"); !errors.Is(err, models.ErrMissingFile) {
		t.Errorf("Stage() error = %v, want ErrMissingFile", err)
	}
}

func TestStage_RejectsNonVideo(t *testing.T) {
	s := newTestStager(t, 1<<20)

	_, err := s.Stage(context.Background(), strings.NewReader("<html><body>hi</body></html>"), "video/mp4")
	if !errors.Is(err, models.ErrInvalidContentType) {
		t.Errorf("Stage() error = %v, want ErrInvalidContentType", err)
	}
}

func TestStage_SizeCap(t *testing.T) {
	s := newTestStager(t, 600)

	if _, err := s.Stage(context.Background(), bytes.NewReader(videoBytes(601)), "video/mp4"); !errors.Is(err, models.ErrFileTooLarge) {
		t.Errorf("Stage() error = %v, want ErrFileTooLarge", err)
	}

	// Exactly at the cap is allowed.
	staged, err := s.Stage(context.Background(), bytes.NewReader(videoBytes(600)), "video/mp4")
	if err != nil {
		t.Fatalf("Stage() at cap error = %v", err)
	}
	s.Cleanup(staged.Path)
}

func TestStage_CancelledContext(t *testing.T) {
	s := newTestStager(t, 1<<20)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Stage(ctx, bytes.NewReader(videoBytes(64)), "video/mp4"); !errors.Is(err, context.Canceled) {
		t.Errorf("Stage() error = %v, want context.Canceled", err)
	}
}
