package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amillerrr/lms-pipeline/internal/auth"
	"github.com/amillerrr/lms-pipeline/internal/config"
	"github.com/amillerrr/lms-pipeline/internal/health"
	"github.com/amillerrr/lms-pipeline/internal/ingest"
	"github.com/amillerrr/lms-pipeline/internal/progress"
	"github.com/amillerrr/lms-pipeline/internal/provider"
	"github.com/amillerrr/lms-pipeline/pkg/models"
)

type fakeIngest struct {
	ingestErr   error
	registerErr error
	gotLesson   string
	gotRemote   string
	gotBytes    int64
}

func (f *fakeIngest) Ingest(ctx context.Context, lessonID string, file io.Reader, contentType string) (*ingest.Result, error) {
	f.gotLesson = lessonID
	n, _ := io.Copy(io.Discard, file)
	f.gotBytes = n
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	return &ingest.Result{
		RemoteVideoID: "remote-1",
		Asset:         &models.VideoAsset{LessonID: lessonID, RemoteVideoID: "remote-1", Status: models.AssetProcessing},
	}, nil
}

func (f *fakeIngest) Register(ctx context.Context, lessonID, remoteVideoID string) (*ingest.Result, error) {
	f.gotLesson = lessonID
	f.gotRemote = remoteVideoID
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &ingest.Result{
		RemoteVideoID: remoteVideoID,
		Asset:         &models.VideoAsset{LessonID: lessonID, RemoteVideoID: remoteVideoID, Status: models.AssetProcessing},
	}, nil
}

type fakeProgress struct {
	completeErr    error
	completeUserID string
	toggleErr      error
	progressErr    error
}

func (f *fakeProgress) Complete(ctx context.Context, userID, lessonID string) (*progress.CompleteResult, error) {
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	f.completeUserID = userID
	return &progress.CompleteResult{
		CompletedAt: "2026-01-01T00:00:00Z",
		Progress:    &models.CourseProgress{Enrolled: true, TotalLessons: 3, CompletedLessons: 1, Percentage: 33},
	}, nil
}

func (f *fakeProgress) Toggle(ctx context.Context, userID, courseID, lessonID string) (*progress.ToggleResult, error) {
	if f.toggleErr != nil {
		return nil, f.toggleErr
	}
	return &progress.ToggleResult{
		Completed:          true,
		CompletedAt:        "2026-01-01T00:00:00Z",
		Progress:           &models.CourseProgress{Enrolled: true, TotalLessons: 2, CompletedLessons: 1, Percentage: 50},
		CompletedLessonIDs: []string{lessonID},
	}, nil
}

func (f *fakeProgress) Progress(ctx context.Context, userID, courseID string) (*models.CourseProgress, error) {
	if f.progressErr != nil {
		return nil, f.progressErr
	}
	return &models.CourseProgress{Enrolled: true, TotalLessons: 4, CompletedLessons: 1, Percentage: 25}, nil
}

func (f *fakeProgress) CompletedLessonIDs(ctx context.Context, userID, courseID string) ([]string, error) {
	return []string{"l1"}, nil
}

type fakeAssetReader struct {
	asset *models.VideoAsset
	err   error
}

func (f *fakeAssetReader) Get(ctx context.Context, lessonID string) (*models.VideoAsset, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.asset, nil
}

type fakePresigner struct {
	err    error
	gotKey string
}

func (f *fakePresigner) PresignGet(ctx context.Context, key string, lifetime time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.gotKey = key
	return "https://archive.test/" + key + "?signed=1", nil
}

type fakeCreator struct {
	err error
}

func (f *fakeCreator) CreateVideo(ctx context.Context, title string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "remote-new", nil
}

type serverFixture struct {
	handler  http.Handler
	ingest   *fakeIngest
	progress *fakeProgress
	assets   *fakeAssetReader
	archive  *fakePresigner
	jwt      *auth.JWTService
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	cfg := &config.Config{Environment: "development"}
	cfg.API.Port = "8080"
	cfg.API.Username = "admin"
	cfg.API.Password = "secret"
	cfg.Ingest.MaxUploadBytes = 1 << 20
	cfg.Provider.LibraryID = "lib-1"
	cfg.Provider.APIKey = "key-1"
	cfg.Provider.CDNHost = "cdn.test"
	cfg.Provider.EmbedHost = "iframe.test"
	cfg.Provider.SigningKey = "sign-key"
	cfg.Provider.PlaybackTTL = time.Hour

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	jwtService, err := auth.NewJWTService("test-secret-that-is-long-enough-for-testing")
	if err != nil {
		t.Fatalf("NewJWTService() error = %v", err)
	}

	fi := &fakeIngest{}
	fp := &fakeProgress{}
	fs := &fakePresigner{}
	fa := &fakeAssetReader{asset: &models.VideoAsset{
		LessonID:      "l1",
		RemoteVideoID: "remote-1",
		Status:        models.AssetProcessing,
	}}

	srv, err := NewServer(&ServerConfig{
		Config:        cfg,
		Logger:        log,
		Ingest:        fi,
		Progress:      fp,
		Assets:        fa,
		Creator:       &fakeCreator{},
		Signer:        provider.NewSigner(cfg),
		Archive:       fs,
		JWTService:    jwtService,
		RateLimiter:   auth.NewRateLimiter(auth.DefaultRateLimiterConfig()),
		HealthChecker: health.NewChecker(health.DefaultConfig("lms-api", log)),
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return &serverFixture{
		handler:  srv.httpServer.Handler,
		ingest:   fi,
		progress: fp,
		assets:   fa,
		archive:  fs,
		jwt:      jwtService,
	}
}

func (f *serverFixture) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := f.jwt.GenerateToken(userID, role)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	return token
}

func (f *serverFixture) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "10.0.0.9:4321"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func multipartVideo(t *testing.T, field string, payload []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "lecture.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(payload); err != nil {
		t.Fatal(err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestLogin(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.9:4321"
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["token"] == "" {
		t.Error("login response missing token")
	}
	claims, err := f.jwt.ValidateToken(resp["token"])
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.Role != auth.RoleInstructor || claims.UserID != "admin" {
		t.Errorf("claims = %q/%q, want instructor/admin", claims.Role, claims.UserID)
	}
}

func TestLogin_StudentRole(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.9:4321"
	req.SetBasicAuth("student-7", "secret")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	claims, err := f.jwt.ValidateToken(resp["token"])
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.Role != auth.RoleStudent {
		t.Errorf("role = %q, want student", claims.Role)
	}
	if claims.UserID != "student-7" {
		t.Errorf("userId = %q, token identity must be the presented username", claims.UserID)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.9:4321"
	req.SetBasicAuth("admin", "wrong")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	f := newServerFixture(t)

	for i := 0; i < auth.DefaultMaxFailedAttempts; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.9:4321"
		req.SetBasicAuth("admin", "wrong")
		f.handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.9:4321"
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 after repeated failures", rec.Code)
	}
}

func TestUploadVideo(t *testing.T) {
	f := newServerFixture(t)
	token := f.token(t, "teach-1", auth.RoleInstructor)
	body, contentType := multipartVideo(t, "video", bytes.Repeat([]byte{0x00, 0x01}, 512))

	rec := f.do(t, http.MethodPost, "/lessons/l1/video", token, body, contentType)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if f.ingest.gotLesson != "l1" {
		t.Errorf("ingest lesson = %q, want l1", f.ingest.gotLesson)
	}
	if f.ingest.gotBytes != 1024 {
		t.Errorf("ingest saw %d bytes, want 1024", f.ingest.gotBytes)
	}

	var resp ingest.Result
	decodeBody(t, rec, &resp)
	if resp.RemoteVideoID != "remote-1" {
		t.Errorf("remoteVideoId = %q", resp.RemoteVideoID)
	}
}

func TestUploadVideo_RequiresInstructor(t *testing.T) {
	f := newServerFixture(t)
	token := f.token(t, "student-1", auth.RoleStudent)
	body, contentType := multipartVideo(t, "video", []byte{0x00, 0x01})

	rec := f.do(t, http.MethodPost, "/lessons/l1/video", token, body, contentType)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 for student upload", rec.Code)
	}
}

func TestUploadVideo_RequiresAuth(t *testing.T) {
	f := newServerFixture(t)
	body, contentType := multipartVideo(t, "video", []byte{0x00, 0x01})

	rec := f.do(t, http.MethodPost, "/lessons/l1/video", "", body, contentType)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without a token", rec.Code)
	}
}

func TestUploadVideo_MissingFilePart(t *testing.T) {
	f := newServerFixture(t)
	token := f.token(t, "teach-1", auth.RoleInstructor)
	body, contentType := multipartVideo(t, "document", []byte{0x00, 0x01})

	rec := f.do(t, http.MethodPost, "/lessons/l1/video", token, body, contentType)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["code"] != string(models.CodeValidation) {
		t.Errorf("code = %q, want validation", resp["code"])
	}
}

func TestUploadVideo_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"lesson missing", models.ErrLessonNotFound, http.StatusNotFound, "not_found"},
		{"too large", models.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "validation"},
		{"provider down", models.Upstream("create failed", io.ErrUnexpectedEOF), http.StatusBadGateway, "upstream_failure"},
		{"unconfigured", models.ErrProviderNotConfigured, http.StatusInternalServerError, "configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServerFixture(t)
			f.ingest.ingestErr = tt.err
			token := f.token(t, "teach-1", auth.RoleInstructor)
			body, contentType := multipartVideo(t, "video", []byte{0x00, 0x01})

			rec := f.do(t, http.MethodPost, "/lessons/l1/video", token, body, contentType)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp map[string]string
			decodeBody(t, rec, &resp)
			if resp["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", resp["code"], tt.wantCode)
			}
		})
	}
}

func TestRegisterVideo(t *testing.T) {
	f := newServerFixture(t)
	token := f.token(t, "teach-1", auth.RoleInstructor)
	body := strings.NewReader(`{"remoteVideoId":"remote-77"}`)

	rec := f.do(t, http.MethodPost, "/lessons/l1/video/register", token, body, "application/json")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if f.ingest.gotRemote != "remote-77" {
		t.Errorf("registered remote id = %q", f.ingest.gotRemote)
	}
}

func TestUploadSignature(t *testing.T) {
	f := newServerFixture(t)
	token := f.token(t, "teach-1", auth.RoleInstructor)

	rec := f.do(t, http.MethodPost, "/lessons/l1/video/upload-signature", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp UploadSignatureResponse
	decodeBody(t, rec, &resp)
	if resp.VideoID != "remote-new" {
		t.Errorf("videoId = %q", resp.VideoID)
	}
	if resp.LibraryID != "lib-1" {
		t.Errorf("libraryId = %q", resp.LibraryID)
	}
	if len(resp.Signature) != 64 {
		t.Errorf("signature length = %d, want 64 hex chars", len(resp.Signature))
	}
	if resp.Expires <= time.Now().Unix() {
		t.Errorf("expires = %d, want future", resp.Expires)
	}
}

func TestGetVideo_Processing(t *testing.T) {
	f := newServerFixture(t)
	token := f.token(t, "student-1", auth.RoleStudent)

	rec := f.do(t, http.MethodGet, "/lessons/l1/video", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp VideoResponse
	decodeBody(t, rec, &resp)
	if resp.Asset.Status != models.AssetProcessing {
		t.Errorf("status = %q", resp.Asset.Status)
	}
	if resp.StreamURL != "" {
		t.Error("processing asset must not carry a stream URL")
	}
}

func TestGetVideo_Ready(t *testing.T) {
	f := newServerFixture(t)
	f.assets.asset.Status = models.AssetReady
	token := f.token(t, "student-1", auth.RoleStudent)

	rec := f.do(t, http.MethodGet, "/lessons/l1/video", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp VideoResponse
	decodeBody(t, rec, &resp)
	if !strings.Contains(resp.StreamURL, "playlist.m3u8") {
		t.Errorf("streamUrl = %q", resp.StreamURL)
	}
	if !strings.Contains(resp.StreamURL, "token=") || !strings.Contains(resp.StreamURL, "expires=") {
		t.Errorf("streamUrl missing signature params: %q", resp.StreamURL)
	}
	if resp.EmbedURL == "" {
		t.Error("ready asset must carry an embed URL")
	}
	expires, err := time.Parse(time.RFC3339, resp.URLExpiresAt)
	if err != nil {
		t.Fatalf("urlExpiresAt = %q: %v", resp.URLExpiresAt, err)
	}
	if !expires.After(time.Now()) {
		t.Errorf("urlExpiresAt = %v, want a future expiry", expires)
	}
}

func TestVideoSource(t *testing.T) {
	f := newServerFixture(t)
	f.assets.asset = &models.VideoAsset{
		LessonID:      "l1",
		RemoteVideoID: "remote-1",
		Status:        models.AssetStalled,
		SourceKey:     "sources/l1/asset-1.mp4",
	}
	token := f.token(t, "instructor-1", auth.RoleInstructor)

	rec := f.do(t, http.MethodGet, "/lessons/l1/video/source", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp VideoSourceResponse
	decodeBody(t, rec, &resp)
	if !strings.Contains(resp.URL, "sources/l1/asset-1.mp4") {
		t.Errorf("url = %q, want presigned link for the archived key", resp.URL)
	}
	if f.archive.gotKey != "sources/l1/asset-1.mp4" {
		t.Errorf("presigned key = %q", f.archive.gotKey)
	}
	if resp.ExpiresAt == "" {
		t.Error("source response missing expiry")
	}
}

func TestVideoSource_StillProcessing(t *testing.T) {
	f := newServerFixture(t)
	f.assets.asset.SourceKey = "sources/l1/asset-1.mp4"
	token := f.token(t, "instructor-1", auth.RoleInstructor)

	rec := f.do(t, http.MethodGet, "/lessons/l1/video/source", token, nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 while transcoding is unsettled", rec.Code)
	}
	if f.archive.gotKey != "" {
		t.Error("no presign may happen for a non-terminal asset")
	}
}

func TestVideoSource_NotArchived(t *testing.T) {
	f := newServerFixture(t)
	f.assets.asset.Status = models.AssetReady
	token := f.token(t, "instructor-1", auth.RoleInstructor)

	rec := f.do(t, http.MethodGet, "/lessons/l1/video/source", token, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 without an archived source", rec.Code)
	}
}

func TestVideoSource_RequiresInstructor(t *testing.T) {
	f := newServerFixture(t)
	token := f.token(t, "student-1", auth.RoleStudent)

	rec := f.do(t, http.MethodGet, "/lessons/l1/video/source", token, nil, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestGetVideo_NotFound(t *testing.T) {
	f := newServerFixture(t)
	f.assets.err = models.ErrAssetNotFound
	token := f.token(t, "student-1", auth.RoleStudent)

	rec := f.do(t, http.MethodGet, "/lessons/l1/video", token, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCompleteLesson(t *testing.T) {
	f := newServerFixture(t)
	token := f.token(t, "student-1", auth.RoleStudent)

	rec := f.do(t, http.MethodPost, "/lessons/l1/complete", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp progress.CompleteResult
	decodeBody(t, rec, &resp)
	if resp.CompletedAt == "" {
		t.Error("completedAt missing from response")
	}
	if resp.Progress == nil || resp.Progress.Percentage != 33 {
		t.Errorf("progress = %+v, want recomputed aggregate in response", resp.Progress)
	}
	if f.progress.completeUserID != "student-1" {
		t.Errorf("userId = %q, must come from the token", f.progress.completeUserID)
	}
}

func TestCompleteLesson_NotEnrolled(t *testing.T) {
	f := newServerFixture(t)
	f.progress.completeErr = models.ErrNotEnrolled
	token := f.token(t, "student-1", auth.RoleStudent)

	rec := f.do(t, http.MethodPost, "/lessons/l1/complete", token, nil, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["code"] != string(models.CodeForbidden) {
		t.Errorf("code = %q, want forbidden", resp["code"])
	}
}

func TestToggleLesson(t *testing.T) {
	f := newServerFixture(t)
	token := f.token(t, "student-1", auth.RoleStudent)

	rec := f.do(t, http.MethodPost, "/courses/c1/lessons/l1/toggle", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp progress.ToggleResult
	decodeBody(t, rec, &resp)
	if !resp.Completed {
		t.Error("expected completed toggle")
	}
	if resp.Progress == nil || resp.Progress.Percentage != 50 {
		t.Errorf("progress = %+v", resp.Progress)
	}
}

func TestToggleLesson_WrongCourse(t *testing.T) {
	f := newServerFixture(t)
	f.progress.toggleErr = models.ErrLessonNotInCourse
	token := f.token(t, "student-1", auth.RoleStudent)

	rec := f.do(t, http.MethodPost, "/courses/c2/lessons/l1/toggle", token, nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCourseProgress(t *testing.T) {
	f := newServerFixture(t)
	token := f.token(t, "student-1", auth.RoleStudent)

	rec := f.do(t, http.MethodGet, "/courses/c1/progress", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp models.CourseProgress
	decodeBody(t, rec, &resp)
	if resp.Percentage != 25 {
		t.Errorf("percentage = %d, want 25", resp.Percentage)
	}
}

func TestCompletedLessons(t *testing.T) {
	f := newServerFixture(t)
	token := f.token(t, "student-1", auth.RoleStudent)

	rec := f.do(t, http.MethodGet, "/courses/c1/completed-lessons", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string][]string
	decodeBody(t, rec, &resp)
	if len(resp["completedLessonIds"]) != 1 || resp["completedLessonIds"][0] != "l1" {
		t.Errorf("completedLessonIds = %v", resp["completedLessonIds"])
	}
}

func TestMetrics_InternalOnly(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "203.0.113.5:9999"
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("public metrics status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "10.0.0.9:9999"
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("internal metrics status = %d, want 200", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
