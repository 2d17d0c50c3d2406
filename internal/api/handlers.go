package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/amillerrr/lms-pipeline/internal/auth"
	"github.com/amillerrr/lms-pipeline/internal/config"
	"github.com/amillerrr/lms-pipeline/internal/ingest"
	"github.com/amillerrr/lms-pipeline/internal/progress"
	"github.com/amillerrr/lms-pipeline/internal/provider"
	"github.com/amillerrr/lms-pipeline/pkg/models"
)

var tracer = otel.Tracer("lms-api")

// Configuration constants
const (
	MaxRequestBodySize     = 1 << 20 // 1 MB, JSON endpoints only
	UploadSignatureExpiry  = time.Hour
	MultipartOverheadBytes = 1 << 20
)

// IngestService receives instructor uploads and registrations.
type IngestService interface {
	Ingest(ctx context.Context, lessonID string, file io.Reader, contentType string) (*ingest.Result, error)
	Register(ctx context.Context, lessonID, remoteVideoID string) (*ingest.Result, error)
}

// ProgressService mutates and aggregates lesson progress.
type ProgressService interface {
	Complete(ctx context.Context, userID, lessonID string) (*progress.CompleteResult, error)
	Toggle(ctx context.Context, userID, courseID, lessonID string) (*progress.ToggleResult, error)
	Progress(ctx context.Context, userID, courseID string) (*models.CourseProgress, error)
	CompletedLessonIDs(ctx context.Context, userID, courseID string) ([]string, error)
}

// AssetReader fetches the video asset attached to a lesson.
type AssetReader interface {
	Get(ctx context.Context, lessonID string) (*models.VideoAsset, error)
}

// VideoCreator reserves remote video objects for direct client uploads.
type VideoCreator interface {
	CreateVideo(ctx context.Context, title string) (string, error)
}

// SourcePresigner mints download URLs for archived raw uploads. Nil when
// archiving is disabled.
type SourcePresigner interface {
	PresignGet(ctx context.Context, key string, lifetime time.Duration) (string, error)
}

// Handlers contains all HTTP handlers for the API.
type Handlers struct {
	cfg         *config.Config
	log         *slog.Logger
	ingest      IngestService
	progress    ProgressService
	assets      AssetReader
	creator     VideoCreator
	signer      *provider.Signer
	archive     SourcePresigner
	jwtService  *auth.JWTService
	rateLimiter *auth.RateLimiter
}

// HandlersConfig holds dependencies for handlers.
type HandlersConfig struct {
	Config      *config.Config
	Logger      *slog.Logger
	Ingest      IngestService
	Progress    ProgressService
	Assets      AssetReader
	Creator     VideoCreator
	Signer      *provider.Signer
	Archive     SourcePresigner
	JWTService  *auth.JWTService
	RateLimiter *auth.RateLimiter
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(cfg *HandlersConfig) *Handlers {
	return &Handlers{
		cfg:         cfg.Config,
		log:         cfg.Logger,
		ingest:      cfg.Ingest,
		progress:    cfg.Progress,
		assets:      cfg.Assets,
		creator:     cfg.Creator,
		signer:      cfg.Signer,
		archive:     cfg.Archive,
		jwtService:  cfg.JWTService,
		rateLimiter: cfg.RateLimiter,
	}
}

// writeJSON writes a JSON response.
func (h *Handlers) writeJSON(ctx context.Context, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.ErrorContext(ctx, "Failed to encode JSON response", "error", err)
	}
}

// writeError writes an ad-hoc error response.
func (h *Handlers) writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	h.writeJSON(ctx, w, status, map[string]string{"error": message, "code": string(codeForStatus(status))})
}

// writeModelError maps a domain error onto an HTTP status and JSON body.
func (h *Handlers) writeModelError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusForError(err)

	message := "Internal server error"
	var domainErr *models.Error
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}
	if status == http.StatusInternalServerError {
		// Do not leak internals; the log has the detail.
		h.log.ErrorContext(ctx, "Request failed", "error", err)
		message = "Internal server error"
	}

	h.writeJSON(ctx, w, status, map[string]string{
		"error": message,
		"code":  string(models.CodeOf(err)),
	})
}

func statusForError(err error) int {
	switch models.CodeOf(err) {
	case models.CodeNotFound:
		return http.StatusNotFound
	case models.CodeForbidden:
		return http.StatusForbidden
	case models.CodeValidation:
		if errors.Is(err, models.ErrFileTooLarge) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	case models.CodeUpstream:
		return http.StatusBadGateway
	case models.CodeConfig:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func codeForStatus(status int) models.ErrorCode {
	switch {
	case status == http.StatusNotFound:
		return models.CodeNotFound
	case status == http.StatusForbidden:
		return models.CodeForbidden
	case status >= 400 && status < 500:
		return models.CodeValidation
	default:
		return models.CodeInternal
	}
}

// limitRequestBody wraps the request body with a size limit.
func (h *Handlers) limitRequestBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
}

func (h *Handlers) userID(ctx context.Context) string {
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return ""
	}
	return claims.UserID
}

// LoginHandler handles user authentication and returns a JWT token.
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientIP := auth.GetClientIP(r)
	if h.rateLimiter != nil && h.rateLimiter.IsLimited(clientIP) {
		h.writeError(ctx, w, http.StatusTooManyRequests, "Too many failed attempts, try again later")
		return
	}

	username, password, ok := r.BasicAuth()
	if !ok {
		h.writeError(ctx, w, http.StatusUnauthorized, "Missing credentials")
		return
	}

	expectedUsername, expectedPassword, err := h.cfg.GetAPICredentials()
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to get API credentials", "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "Server configuration error")
		return
	}

	// The configured credential pair is the instructor account. Any other
	// username presenting the student access secret logs in as that
	// student, so token identities stay distinct per user.
	var role string
	switch {
	case username == expectedUsername && password == expectedPassword:
		role = auth.RoleInstructor
	case username != "" && h.cfg.GetStudentPassword() != "" && password == h.cfg.GetStudentPassword():
		role = auth.RoleStudent
	default:
		if h.rateLimiter != nil {
			h.rateLimiter.RecordFailure(clientIP)
		}
		h.log.WarnContext(ctx, "Failed login attempt", "username", username, "ip", clientIP)
		h.writeError(ctx, w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if h.rateLimiter != nil {
		h.rateLimiter.Reset(clientIP)
	}

	token, err := h.jwtService.GenerateToken(username, role)
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to generate token", "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	h.log.InfoContext(ctx, "Successful login", "username", username, "role", role, "ip", clientIP)
	h.writeJSON(ctx, w, http.StatusOK, map[string]string{"token": token, "role": role})
}

// UploadVideoHandler ingests a multipart video upload for a lesson. The
// file part streams straight into the pipeline; transcoding continues in
// the background after the response.
func (h *Handlers) UploadVideoHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lessonID := r.PathValue("lessonId")

	ctx, span := tracer.Start(ctx, "upload-video-handler",
		trace.WithAttributes(attribute.String("lesson.id", lessonID)))
	defer span.End()

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Ingest.MaxUploadBytes+MultipartOverheadBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		span.RecordError(err)
		h.writeError(ctx, w, http.StatusBadRequest, "Expected multipart/form-data")
		return
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			span.RecordError(err)
			h.writeError(ctx, w, http.StatusBadRequest, "Malformed multipart body")
			return
		}
		if part.FormName() != "video" {
			part.Close()
			continue
		}

		result, err := h.ingest.Ingest(ctx, lessonID, part, part.Header.Get("Content-Type"))
		part.Close()
		if err != nil {
			span.RecordError(err)
			h.writeModelError(ctx, w, err)
			return
		}

		h.writeJSON(ctx, w, http.StatusAccepted, result)
		return
	}

	h.writeModelError(ctx, w, models.ErrMissingFile)
}

// RegisterVideoRequest is the payload for registering an already-uploaded
// remote video.
type RegisterVideoRequest struct {
	RemoteVideoID string `json:"remoteVideoId"`
}

// RegisterVideoHandler attaches an existing remote video to a lesson.
func (h *Handlers) RegisterVideoHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lessonID := r.PathValue("lessonId")

	h.limitRequestBody(w, r)

	var req RegisterVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.ingest.Register(ctx, lessonID, req.RemoteVideoID)
	if err != nil {
		h.writeModelError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, http.StatusAccepted, result)
}

// UploadSignatureResponse carries what a client needs for a direct
// provider-side upload.
type UploadSignatureResponse struct {
	VideoID   string `json:"videoId"`
	LibraryID string `json:"libraryId"`
	Signature string `json:"signature"`
	Expires   int64  `json:"expires"`
}

// UploadSignatureHandler reserves a remote video and returns the presigned
// headers for uploading to the provider directly. The client must call
// register afterwards so the asset row exists.
func (h *Handlers) UploadSignatureHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lessonID := r.PathValue("lessonId")

	remoteVideoID, err := h.creator.CreateVideo(ctx, "lesson-"+lessonID)
	if err != nil {
		h.writeModelError(ctx, w, err)
		return
	}

	expires := time.Now().Add(UploadSignatureExpiry).Unix()
	signature, err := h.signer.UploadSignature(remoteVideoID, expires)
	if err != nil {
		h.writeModelError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, UploadSignatureResponse{
		VideoID:   remoteVideoID,
		LibraryID: h.cfg.Provider.LibraryID,
		Signature: signature,
		Expires:   expires,
	})
}

// VideoResponse is the lesson video lookup payload. StreamURL is only set
// once the asset is ready; URLExpiresAt reports when the signed URLs stop
// working.
type VideoResponse struct {
	Asset        *models.VideoAsset `json:"asset"`
	StreamURL    string             `json:"streamUrl,omitempty"`
	EmbedURL     string             `json:"embedUrl,omitempty"`
	URLExpiresAt string             `json:"urlExpiresAt,omitempty"`
}

// GetVideoHandler returns the asset state for a lesson, with signed playback
// URLs once transcoding finished.
func (h *Handlers) GetVideoHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lessonID := r.PathValue("lessonId")

	asset, err := h.assets.Get(ctx, lessonID)
	if err != nil {
		h.writeModelError(ctx, w, err)
		return
	}

	resp := VideoResponse{Asset: asset}
	if asset.Status == models.AssetReady {
		now := time.Now()
		streamURL, err := h.signer.SignedStreamURL(asset.RemoteVideoID, now)
		if err != nil {
			h.writeModelError(ctx, w, err)
			return
		}
		embedURL, err := h.signer.SignedEmbedURL(asset.RemoteVideoID, now)
		if err != nil {
			h.writeModelError(ctx, w, err)
			return
		}
		resp.StreamURL = streamURL
		resp.EmbedURL = embedURL
		resp.URLExpiresAt = now.Add(h.signer.TTL()).UTC().Format(time.RFC3339)
	}

	h.writeJSON(ctx, w, http.StatusOK, resp)
}

// SourceDownloadLifetime bounds how long a presigned source link stays
// valid.
const SourceDownloadLifetime = 15 * time.Minute

// VideoSourceResponse carries a presigned download link for the archived
// raw upload.
type VideoSourceResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt"`
}

// VideoSourceHandler returns a presigned download URL for a lesson's
// archived raw upload, so operators can re-transcode a stalled video without
// asking the instructor for the file again. The source is only released
// once reconciliation settled.
func (h *Handlers) VideoSourceHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lessonID := r.PathValue("lessonId")

	asset, err := h.assets.Get(ctx, lessonID)
	if err != nil {
		h.writeModelError(ctx, w, err)
		return
	}

	if !asset.Status.Terminal() {
		h.writeModelError(ctx, w, models.Validation("transcoding is still in progress"))
		return
	}
	if h.archive == nil || asset.SourceKey == "" {
		h.writeModelError(ctx, w, models.ErrNoSourceFound)
		return
	}

	url, err := h.archive.PresignGet(ctx, asset.SourceKey, SourceDownloadLifetime)
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to presign source download", "lessonId", lessonID, "error", err)
		h.writeModelError(ctx, w, models.Upstream("failed to presign source download", err))
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, VideoSourceResponse{
		URL:       url,
		ExpiresAt: time.Now().Add(SourceDownloadLifetime).UTC().Format(time.RFC3339),
	})
}

// CompleteLessonHandler marks a lesson done for the authenticated user.
func (h *Handlers) CompleteLessonHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lessonID := r.PathValue("lessonId")

	result, err := h.progress.Complete(ctx, h.userID(ctx), lessonID)
	if err != nil {
		h.writeModelError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, result)
}

// ToggleLessonHandler flips lesson completion for the authenticated user.
func (h *Handlers) ToggleLessonHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	courseID := r.PathValue("courseId")
	lessonID := r.PathValue("lessonId")

	result, err := h.progress.Toggle(ctx, h.userID(ctx), courseID, lessonID)
	if err != nil {
		h.writeModelError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, result)
}

// CourseProgressHandler returns the per-course aggregate.
func (h *Handlers) CourseProgressHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	courseID := r.PathValue("courseId")

	report, err := h.progress.Progress(ctx, h.userID(ctx), courseID)
	if err != nil {
		h.writeModelError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, report)
}

// CompletedLessonsHandler lists completed lesson ids in course order.
func (h *Handlers) CompletedLessonsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	courseID := r.PathValue("courseId")

	ids, err := h.progress.CompletedLessonIDs(ctx, h.userID(ctx), courseID)
	if err != nil {
		h.writeModelError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string][]string{"completedLessonIds": ids})
}
