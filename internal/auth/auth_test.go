package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewJWTService(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr error
	}{
		{"valid secret", "a-very-long-secret-that-is-at-least-32-chars", nil},
		{"short secret", "short", nil}, // Still valid, just not recommended
		{"empty secret", "", ErrMissingSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJWTService(tt.secret)
			if err != tt.wantErr {
				t.Errorf("NewJWTService() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestJWTService_GenerateAndValidate(t *testing.T) {
	svc, err := NewJWTService("test-secret-that-is-long-enough-for-testing")
	if err != nil {
		t.Fatalf("NewJWTService() error = %v", err)
	}

	token, err := svc.GenerateToken("user-1", RoleInstructor)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateToken() returned empty token")
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("claims.UserID = %s, want user-1", claims.UserID)
	}
	if claims.Role != RoleInstructor {
		t.Errorf("claims.Role = %s, want instructor", claims.Role)
	}
}

func TestJWTService_RejectsWrongKey(t *testing.T) {
	svc1, _ := NewJWTService("first-secret-used-for-signing-tokens")
	svc2, _ := NewJWTService("second-secret-used-for-validation")

	token, err := svc1.GenerateToken("user-1", RoleStudent)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if _, err := svc2.ValidateToken(token); err == nil {
		t.Error("ValidateToken() accepted a token signed with another key")
	}
}

func TestJWTService_RejectsGarbage(t *testing.T) {
	svc, _ := NewJWTService("test-secret-that-is-long-enough-for-testing")

	if _, err := svc.ValidateToken("not-a-token"); err == nil {
		t.Error("ValidateToken() accepted garbage")
	}
}

func TestMiddleware(t *testing.T) {
	svc, _ := NewJWTService("test-secret-that-is-long-enough-for-testing")
	token, err := svc.GenerateToken("user-1", RoleStudent)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	var gotUserID string
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Error("claims missing from context")
			return
		}
		gotUserID = claims.UserID
	}))

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"malformed", "Bearer", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}

	if gotUserID != "user-1" {
		t.Errorf("handler saw userID %q, want user-1", gotUserID)
	}
}

func TestRequireRole(t *testing.T) {
	svc, _ := NewJWTService("test-secret-that-is-long-enough-for-testing")

	handler := svc.RequireRole(RoleInstructor, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		name       string
		role       string
		wantStatus int
	}{
		{"instructor passes", RoleInstructor, http.StatusOK},
		{"student blocked", RoleStudent, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req = req.WithContext(WithClaims(req.Context(), &Claims{UserID: "u", Role: tt.role}))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		MaxFailedAttempts: 3,
		Window:            time.Minute,
		CleanupInterval:   time.Minute,
	})
	defer rl.Stop()

	ip := "192.0.2.1"
	if rl.IsLimited(ip) {
		t.Error("fresh IP must not be limited")
	}

	for i := 0; i < 3; i++ {
		rl.RecordFailure(ip)
	}
	if !rl.IsLimited(ip) {
		t.Error("IP must be limited after max failures")
	}

	rl.Reset(ip)
	if rl.IsLimited(ip) {
		t.Error("Reset() must clear the limit")
	}
}

func TestRateLimiter_WindowExpiry(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		MaxFailedAttempts: 1,
		Window:            10 * time.Millisecond,
		CleanupInterval:   time.Minute,
	})
	defer rl.Stop()

	rl.RecordFailure("192.0.2.2")
	if !rl.IsLimited("192.0.2.2") {
		t.Fatal("IP must be limited inside the window")
	}

	time.Sleep(20 * time.Millisecond)
	if rl.IsLimited("192.0.2.2") {
		t.Error("limit must expire with the window")
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "10.0.0.1:1234", nil, "10.0.0.1"},
		{"x-forwarded-for", "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "203.0.113.7"},
		{"x-forwarded-for chain", "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2"}, "203.0.113.7"},
		{"x-real-ip", "10.0.0.1:1234", map[string]string{"X-Real-IP": "203.0.113.9"}, "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := GetClientIP(req); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
