package auth

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"influencehub/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

func testHandler(t *testing.T) (*Handler, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(db, "test_secret", logger), db
}

func doJSON(h gin.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST(path, h)

	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegister_IssuesToken(t *testing.T) {
	h, _ := testHandler(t)

	w := doJSON(h.Register, "/register", map[string]string{
		"email":        "brand@example.com",
		"password":     "secret1",
		"company_name": "Acme Fitness",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp tokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("expected token in response")
	}

	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(resp.Token, &claims, func(*jwt.Token) (any, error) {
		return []byte("test_secret"), nil
	})
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "1" {
		t.Fatalf("expected subject 1, got %q", claims.Subject)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	h, _ := testHandler(t)

	body := map[string]string{
		"email":        "brand@example.com",
		"password":     "secret1",
		"company_name": "Acme Fitness",
	}
	if w := doJSON(h.Register, "/register", body); w.Code != http.StatusCreated {
		t.Fatalf("first register: expected 201, got %d", w.Code)
	}
	if w := doJSON(h.Register, "/register", body); w.Code != http.StatusConflict {
		t.Fatalf("second register: expected 409, got %d", w.Code)
	}
}

func TestRegister_ShortPassword(t *testing.T) {
	h, _ := testHandler(t)

	w := doJSON(h.Register, "/register", map[string]string{
		"email":        "brand@example.com",
		"password":     "abc",
		"company_name": "Acme Fitness",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestLogin_Flow(t *testing.T) {
	h, _ := testHandler(t)

	if w := doJSON(h.Register, "/register", map[string]string{
		"email":        "brand@example.com",
		"password":     "secret1",
		"company_name": "Acme Fitness",
	}); w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", w.Code)
	}

	w := doJSON(h.Login, "/login", map[string]string{
		"email":    "Brand@Example.com", // 邮箱大小写不敏感
		"password": "secret1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(h.Login, "/login", map[string]string{
		"email":    "brand@example.com",
		"password": "wrong-password",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: expected 401, got %d", w.Code)
	}
}
