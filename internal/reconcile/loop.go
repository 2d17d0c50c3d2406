// Package reconcile keeps asset rows in sync with the remote transcoding
// provider. Each registered remote video gets one polling goroutine that
// runs until the video is ready, fails, or the attempt budget runs out.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/amillerrr/lms-pipeline/internal/metrics"
	"github.com/amillerrr/lms-pipeline/internal/provider"
	"github.com/amillerrr/lms-pipeline/pkg/models"
)

var tracer = otel.Tracer("lms-reconcile")

const (
	// DefaultPollInterval is how often a watcher asks the provider for status.
	DefaultPollInterval = 10 * time.Second
	// DefaultMaxAttempts bounds the polls per video before it stalls.
	DefaultMaxAttempts = 60
)

// StatusClient queries the provider's processing state.
type StatusClient interface {
	GetStatus(ctx context.Context, remoteVideoID string) (provider.VideoStatus, error)
}

// Assets applies terminal status transitions to stored asset rows.
type Assets interface {
	MarkReady(ctx context.Context, remoteVideoID string, durationSeconds int, thumbnailURL string) error
	MarkStalled(ctx context.Context, remoteVideoID string) error
}

// Events notifies operators about stalled assets; nil disables publishing.
type Events interface {
	PublishStalled(ctx context.Context, event models.StalledAssetEvent) error
}

// Config holds reconciler dependencies.
type Config struct {
	Client       StatusClient
	Assets       Assets
	Events       Events
	Signer       *provider.Signer
	PollInterval time.Duration
	MaxAttempts  int
	Logger       *slog.Logger
}

// Reconciler runs one watcher goroutine per remote video. Watch is
// idempotent per id; a second call while a watcher is running is a no-op.
type Reconciler struct {
	client       StatusClient
	assets       Assets
	events       Events
	signer       *provider.Signer
	pollInterval time.Duration
	maxAttempts  int
	log          *slog.Logger

	mu       sync.Mutex
	watchers map[string]context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a Reconciler. Zero interval and attempts fall back to defaults.
func New(cfg *Config) *Reconciler {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	return &Reconciler{
		client:       cfg.Client,
		assets:       cfg.Assets,
		events:       cfg.Events,
		signer:       cfg.Signer,
		pollInterval: interval,
		maxAttempts:  attempts,
		log:          cfg.Logger,
		watchers:     make(map[string]context.CancelFunc),
	}
}

// Watch starts a polling loop for a remote video. It returns false without
// spawning anything when the id is already being watched.
func (r *Reconciler) Watch(remoteVideoID, lessonID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.watchers[remoteVideoID]; exists {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.watchers[remoteVideoID] = cancel
	r.wg.Add(1)
	metrics.ActiveWatchers.Inc()

	go r.run(ctx, remoteVideoID, lessonID)
	return true
}

// Watching reports whether a watcher is currently running for the id.
func (r *Reconciler) Watching(remoteVideoID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.watchers[remoteVideoID]
	return ok
}

// Drain stops all watchers and waits for them to exit, bounded by ctx.
func (r *Reconciler) Drain(ctx context.Context) error {
	r.mu.Lock()
	for _, cancel := range r.watchers {
		cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) remove(remoteVideoID string) {
	r.mu.Lock()
	if cancel, ok := r.watchers[remoteVideoID]; ok {
		cancel()
		delete(r.watchers, remoteVideoID)
		metrics.ActiveWatchers.Dec()
	}
	r.mu.Unlock()
}

func (r *Reconciler) run(ctx context.Context, remoteVideoID, lessonID string) {
	defer r.wg.Done()
	defer r.remove(remoteVideoID)

	ctx, span := tracer.Start(ctx, "reconcile-video",
		trace.WithAttributes(
			attribute.String("video.remote_id", remoteVideoID),
			attribute.String("lesson.id", lessonID),
		))
	defer span.End()

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		done := r.poll(ctx, remoteVideoID, lessonID, attempt)
		if done {
			return
		}

		select {
		case <-ctx.Done():
			r.log.InfoContext(ctx, "Watcher cancelled",
				"remoteVideoId", remoteVideoID,
				"attempts", attempt,
			)
			return
		case <-time.After(r.pollInterval):
		}
	}

	r.stall(ctx, remoteVideoID, lessonID, r.maxAttempts, "attempts exhausted")
}

// poll performs one status query. It returns true when the video reached a
// terminal outcome and the watcher should stop.
func (r *Reconciler) poll(ctx context.Context, remoteVideoID, lessonID string, attempt int) bool {
	status, err := r.client.GetStatus(ctx, remoteVideoID)
	if err != nil {
		if errors.Is(err, models.ErrAssetNotFound) {
			// The remote object disappeared; waiting longer cannot help.
			metrics.ReconcilePolls.WithLabelValues("missing").Inc()
			r.stall(ctx, remoteVideoID, lessonID, attempt, "remote video not found")
			return true
		}
		// Transient failures spend an attempt but do not stop the loop.
		metrics.ReconcilePolls.WithLabelValues("error").Inc()
		r.log.WarnContext(ctx, "Status poll failed",
			"remoteVideoId", remoteVideoID,
			"attempt", attempt,
			"error", err,
		)
		return false
	}

	switch {
	case status.Ready():
		metrics.ReconcilePolls.WithLabelValues("ready").Inc()
		r.markReady(ctx, remoteVideoID, status)
		return true
	case status.Failed():
		metrics.ReconcilePolls.WithLabelValues("failed").Inc()
		r.stall(ctx, remoteVideoID, lessonID, attempt, "provider reported encoding failure")
		return true
	default:
		metrics.ReconcilePolls.WithLabelValues("pending").Inc()
		return false
	}
}

func (r *Reconciler) markReady(ctx context.Context, remoteVideoID string, status provider.VideoStatus) {
	duration := int(math.Round(status.LengthSeconds))
	thumbnail := r.signer.ThumbnailURL(remoteVideoID)

	if err := r.assets.MarkReady(ctx, remoteVideoID, duration, thumbnail); err != nil {
		// The row may have been replaced by a re-ingest; the newer watcher
		// owns it now.
		r.log.WarnContext(ctx, "Failed to mark asset ready",
			"remoteVideoId", remoteVideoID,
			"error", err,
		)
		return
	}

	metrics.AssetsReady.Inc()
	r.log.InfoContext(ctx, "Asset ready",
		"remoteVideoId", remoteVideoID,
		"durationSeconds", duration,
	)
}

func (r *Reconciler) stall(ctx context.Context, remoteVideoID, lessonID string, attempts int, reason string) {
	if err := r.assets.MarkStalled(ctx, remoteVideoID); err != nil {
		if !errors.Is(err, models.ErrAssetNotFound) {
			r.log.ErrorContext(ctx, "Failed to mark asset stalled",
				"remoteVideoId", remoteVideoID,
				"error", err,
			)
		}
		return
	}

	metrics.AssetsStalled.Inc()
	r.log.ErrorContext(ctx, "Asset stalled",
		"remoteVideoId", remoteVideoID,
		"lessonId", lessonID,
		"attempts", attempts,
		"reason", reason,
	)

	if r.events == nil {
		return
	}
	event := models.StalledAssetEvent{
		RemoteVideoID: remoteVideoID,
		LessonID:      lessonID,
		Attempts:      attempts,
		Reason:        reason,
	}
	if err := r.events.PublishStalled(ctx, event); err != nil {
		r.log.ErrorContext(ctx, "Failed to publish stalled event",
			"remoteVideoId", remoteVideoID,
			"error", err,
		)
	}
}
