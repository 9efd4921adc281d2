package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"docqa/internal/api"
	"docqa/internal/domain/ingest"
)

const testSecret = "route-test-secret"

// stubTracker 路由测试用的空实现
type stubTracker struct{}

func (stubTracker) Get(ctx context.Context, filename string) (*ingest.FileRecord, error) {
	return nil, nil
}
func (stubTracker) Create(ctx context.Context, filename string) (bool, error) { return true, nil }
func (stubTracker) UpdateStatus(ctx context.Context, filename string, status ingest.FileStatus, errorMsg string) error {
	return nil
}
func (stubTracker) ResetToPending(ctx context.Context, filename string) error { return nil }
func (stubTracker) Delete(ctx context.Context, filename string) error         { return nil }
func (stubTracker) List(ctx context.Context) ([]ingest.FileRecord, error) {
	return []ingest.FileRecord{{Filename: "pump_manual.pdf", Status: ingest.StatusCompleted}}, nil
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	cfg := api.DefaultServerConfig()
	cfg.JWTSecret = testSecret

	srv := api.NewServer(cfg, nil, nil)
	srv.SetIngestion(stubTracker{}, nil, nil, nil)
	return srv.Handler()
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestHealthIsPublic(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("health should not require auth, got %d", rec.Code)
	}
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	h := newTestHandler(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/query"},
		{http.MethodGet, "/ingestion/status"},
		{http.MethodPost, "/ingestion/scan"},
		{http.MethodDelete, "/ingestion/pump_manual.pdf"},
	}
	for _, p := range paths {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(p.method, p.path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s without token: expected 401, got %d", p.method, p.path, rec.Code)
		}
		var body struct {
			Code  int    `json:"code"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s %s: error body not valid JSON: %v", p.method, p.path, err)
		}
		if body.Code != http.StatusUnauthorized || body.Error != "unauthorized" {
			t.Fatalf("%s %s: unexpected error envelope: %+v", p.method, p.path, body)
		}
	}
	t.Logf("✅ 未带 token 全部拒绝")
}

func TestMalformedAuthorizationHeader(t *testing.T) {
	h := newTestHandler(t)

	headers := []string{
		"Basic dXNlcjpwYXNz",
		"Bearer",
		"garbage",
	}
	for _, header := range headers {
		req := httptest.NewRequest(http.MethodGet, "/ingestion/status", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
}

func TestWrongSecretRejected(t *testing.T) {
	h := newTestHandler(t)

	token := signToken(t, "some-other-secret", jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodGet, "/ingestion/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: expected 401, got %d", rec.Code)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	h := newTestHandler(t)

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodGet, "/ingestion/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: expected 401, got %d", rec.Code)
	}
}

func TestValidTokenReachesHandler(t *testing.T) {
	h := newTestHandler(t)

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":   "alice",
		"roles": []string{"operator"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodGet, "/ingestion/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: expected 200, got %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	var records []ingest.FileRecord
	if err := json.Unmarshal(resp.Data, &records); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	if len(records) != 1 || records[0].Filename != "pump_manual.pdf" {
		t.Fatalf("unexpected records: %+v", records)
	}
	t.Logf("✅ 有效 token 正常到达 handler")
}

func TestJWTSecretRequired(t *testing.T) {
	cfg := api.DefaultServerConfig()
	// 不设置 JWTSecret
	srv := api.NewServer(cfg, nil, nil)

	defer func() {
		if recover() == nil {
			t.Fatal("Handler must refuse to build without JWT secret")
		}
	}()
	srv.Handler()
}
