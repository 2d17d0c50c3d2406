// Package ingest orchestrates video upload: staging the file, creating the
// remote object, streaming bytes, recording the asset, and handing the new
// remote video to the reconciliation loop.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/amillerrr/lms-pipeline/internal/metrics"
	"github.com/amillerrr/lms-pipeline/internal/provider"
	"github.com/amillerrr/lms-pipeline/pkg/models"
)

var tracer = otel.Tracer("lms-ingest")

// RemoteProvider is the subset of the provider client the pipeline needs.
type RemoteProvider interface {
	CreateVideo(ctx context.Context, title string) (string, error)
	Upload(ctx context.Context, remoteVideoID string, body io.Reader, contentType string) error
}

// AssetStore persists video asset rows.
type AssetStore interface {
	UpsertProcessing(ctx context.Context, lessonID, remoteVideoID, embedURL string) (*models.VideoAsset, error)
	SetSourceKey(ctx context.Context, lessonID, key string) error
}

// Catalog resolves lessons through the course hierarchy.
type Catalog interface {
	ResolveCourseForLesson(ctx context.Context, lessonID string) (string, error)
}

// Watcher starts a reconciliation loop for a remote video. It must be safe
// to call for an already-watched id (no duplicate loop is spawned).
type Watcher interface {
	Watch(remoteVideoID, lessonID string) bool
}

// Archiver retains raw sources; nil disables archiving.
type Archiver interface {
	Put(ctx context.Context, lessonID, assetID, ext string, body io.Reader, contentType string) (string, error)
}

// Result is returned to the caller once the upload is recorded. Transcoding
// continues in the background; the caller does not wait for it.
type Result struct {
	RemoteVideoID string             `json:"remoteVideoId"`
	Asset         *models.VideoAsset `json:"asset"`
}

// Config holds pipeline dependencies.
type Config struct {
	Provider RemoteProvider
	Assets   AssetStore
	Catalog  Catalog
	Watcher  Watcher
	Archive  Archiver
	Signer   *provider.Signer
	Stager   *Stager
	Logger   *slog.Logger
}

// Pipeline ingests instructor uploads.
type Pipeline struct {
	provider RemoteProvider
	assets   AssetStore
	catalog  Catalog
	watcher  Watcher
	archive  Archiver
	signer   *provider.Signer
	stager   *Stager
	log      *slog.Logger
}

// New creates a Pipeline with the given configuration.
func New(cfg *Config) *Pipeline {
	return &Pipeline{
		provider: cfg.Provider,
		assets:   cfg.Assets,
		catalog:  cfg.Catalog,
		watcher:  cfg.Watcher,
		archive:  cfg.Archive,
		signer:   cfg.Signer,
		stager:   cfg.Stager,
		log:      cfg.Logger,
	}
}

// Ingest receives a video for a lesson and pushes it through the provider.
// Validation failures and the lesson-existence check happen before any remote
// call; an upload failure leaves no asset row behind. The staged temp file is
// removed on every exit path.
func (p *Pipeline) Ingest(ctx context.Context, lessonID string, file io.Reader, contentType string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "ingest-video",
		trace.WithAttributes(attribute.String("lesson.id", lessonID)))
	defer span.End()

	start := time.Now()

	if lessonID == "" {
		metrics.RecordUploadFailure()
		return nil, models.ErrMissingLessonID
	}

	// Lesson must exist before we create anything remote; a typo must not
	// orphan a provider object.
	if _, err := p.catalog.ResolveCourseForLesson(ctx, lessonID); err != nil {
		metrics.RecordUploadFailure()
		return nil, err
	}

	staged, err := p.stager.Stage(ctx, file, contentType)
	if err != nil {
		metrics.RecordUploadFailure()
		return nil, err
	}
	defer p.stager.Cleanup(staged.Path)

	remoteVideoID, err := p.provider.CreateVideo(ctx, fmt.Sprintf("lesson-%s", lessonID))
	if err != nil {
		metrics.RecordUploadFailure()
		return nil, err
	}
	span.SetAttributes(attribute.String("video.remote_id", remoteVideoID))

	src, err := os.Open(staged.Path)
	if err != nil {
		metrics.RecordUploadFailure()
		return nil, fmt.Errorf("failed to reopen staged file: %w", err)
	}

	err = p.provider.Upload(ctx, remoteVideoID, src, staged.ContentType)
	src.Close()
	if err != nil {
		// The remote object now exists without a local record. Log it so
		// operators can recover via re-registration.
		p.log.ErrorContext(ctx, "Upload failed after remote object creation",
			"lessonId", lessonID,
			"remoteVideoId", remoteVideoID,
			"error", err,
		)
		metrics.RecordUploadFailure()
		return nil, err
	}

	result, err := p.record(ctx, lessonID, remoteVideoID)
	if err != nil {
		metrics.RecordUploadFailure()
		return nil, err
	}

	p.archiveSource(ctx, lessonID, result.Asset.AssetID, staged)

	metrics.RecordUploadSuccess()
	metrics.UploadDuration.Observe(time.Since(start).Seconds())

	p.log.InfoContext(ctx, "Video ingested",
		"lessonId", lessonID,
		"remoteVideoId", remoteVideoID,
		"sizeBytes", staged.Size,
	)

	return result, nil
}

// Register records a video the client uploaded directly to the provider.
func (p *Pipeline) Register(ctx context.Context, lessonID, remoteVideoID string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "register-video")
	defer span.End()

	if lessonID == "" {
		return nil, models.ErrMissingLessonID
	}
	if remoteVideoID == "" {
		return nil, models.ErrMissingRemoteVideoID
	}

	if _, err := p.catalog.ResolveCourseForLesson(ctx, lessonID); err != nil {
		return nil, err
	}

	return p.record(ctx, lessonID, remoteVideoID)
}

// record upserts the asset row and hands the remote video to the watcher.
// The watcher call is fire-and-forget: its outcome is never awaited here.
func (p *Pipeline) record(ctx context.Context, lessonID, remoteVideoID string) (*Result, error) {
	asset, err := p.assets.UpsertProcessing(ctx, lessonID, remoteVideoID, p.signer.EmbedURL(remoteVideoID))
	if err != nil {
		return nil, err
	}

	if started := p.watcher.Watch(remoteVideoID, lessonID); !started {
		p.log.InfoContext(ctx, "Reconciler already watching remote video",
			"remoteVideoId", remoteVideoID,
		)
	}

	return &Result{RemoteVideoID: remoteVideoID, Asset: asset}, nil
}

// archiveSource retains the raw upload. Best-effort: failures are logged,
// never surfaced to the uploader.
func (p *Pipeline) archiveSource(ctx context.Context, lessonID, assetID string, staged *StagedFile) {
	if p.archive == nil {
		return
	}

	src, err := os.Open(staged.Path)
	if err != nil {
		p.log.WarnContext(ctx, "Failed to reopen staged file for archiving", "error", err)
		return
	}
	defer src.Close()

	key, err := p.archive.Put(ctx, lessonID, assetID, staged.Ext, src, staged.ContentType)
	if err != nil {
		p.log.WarnContext(ctx, "Failed to archive raw source",
			"lessonId", lessonID,
			"error", err,
		)
		return
	}

	if err := p.assets.SetSourceKey(ctx, lessonID, key); err != nil {
		p.log.WarnContext(ctx, "Failed to record archived source key",
			"lessonId", lessonID,
			"key", key,
			"error", err,
		)
		return
	}

	p.log.InfoContext(ctx, "Raw source archived", "lessonId", lessonID, "key", key)
}
