package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/wechatpad/internal/db"
	"github.com/wechatpad/internal/handler"
)

func setupTestRouter(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	provider := db.NewProvider(db.Options{Memory: true}, "")
	t.Cleanup(func() { provider.Close() })

	api := handler.NewAPI(provider, handler.Options{})
	t.Cleanup(api.Close)

	r := SetupRouter(api, Options{SessionSecret: "test-secret"})
	return WithCORS(r, []string{"http://editor.test"})
}

func TestSetupRouterServesDocuments(t *testing.T) {
	h := setupTestRouter(t)

	body, _ := json.Marshal(map[string]string{"title": "路由测试", "content": "正文"})
	req := httptest.NewRequest(http.MethodPost, "/api/documents", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var list struct {
		Documents []struct {
			Title string `json:"title"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Documents) != 1 || list.Documents[0].Title != "路由测试" {
		t.Fatalf("unexpected documents %+v", list.Documents)
	}
}

func TestStaticRoutesWinOverParams(t *testing.T) {
	h := setupTestRouter(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/images/resolve?url=local-image://abc", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte(`"/api/images/abc/raw"`)) {
		t.Fatalf("unexpected resolve body %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/documents/metadata/rebuild", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected rebuild status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/documents", nil)
	req.Header.Set("Origin", "http://editor.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://editor.test" {
		t.Fatalf("expected allowed origin, got %q", got)
	}
	if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("expected credentials to be allowed")
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/documents", nil)
	req.Header.Set("Origin", "http://evil.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("expected unknown origin to be rejected")
	}
}

func TestHealthCheck(t *testing.T) {
	h := setupTestRouter(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}
