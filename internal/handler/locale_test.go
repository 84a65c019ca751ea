package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wechatpad/internal/locale"
	"github.com/wechatpad/internal/service"
)

func TestLanguageQueryIsRemembered(t *testing.T) {
	api, r := setupTestAPI(t, Options{})
	r.GET("/api/documents/:id", api.GetDocument)

	w := perform(r, httptest.NewRequest(http.MethodGet, "/api/documents/missing?lang=en", nil))
	var body errorResponse
	decode(t, w, &body)
	if body.Error != "The requested item does not exist" {
		t.Fatalf("expected english message, got %q", body.Error)
	}
	if got := w.Header().Get("Set-Cookie"); !strings.Contains(got, "wp_lang=en") {
		t.Fatalf("expected language cookie, got %q", got)
	}
	if vary := w.Header().Get("Vary"); !strings.Contains(vary, "Cookie") {
		t.Fatalf("expected Vary to include Cookie, got %q", vary)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/documents/missing", nil)
	req.AddCookie(&http.Cookie{Name: "wp_lang", Value: "en"})
	req.Header.Set("Accept-Language", "zh-CN")
	w = perform(r, req)
	decode(t, w, &body)
	if body.Error != "The requested item does not exist" {
		t.Fatalf("expected cookie to win over Accept-Language, got %q", body.Error)
	}
	if w.Header().Get("Set-Cookie") != "" {
		t.Fatalf("cookie should only be written for an explicit lang parameter")
	}
}

func TestLanguageDefaultsToChinese(t *testing.T) {
	api, r := setupTestAPI(t, Options{})
	r.GET("/api/documents/:id", api.GetDocument)

	req := httptest.NewRequest(http.MethodGet, "/api/documents/missing", nil)
	req.Header.Set("CF-IPCountry", "CN")
	w := perform(r, req)
	var body errorResponse
	decode(t, w, &body)
	if body.Error != "请求的内容不存在" {
		t.Fatalf("expected chinese message, got %q", body.Error)
	}
	if w.Header().Get("Content-Language") != "zh-CN" {
		t.Fatalf("unexpected Content-Language %q", w.Header().Get("Content-Language"))
	}
}

func TestEveryErrorKindHasMessage(t *testing.T) {
	fallback := locale.ErrorMessage(string(service.KindStorage), locale.English)
	kinds := []service.Kind{
		service.KindNotFound,
		service.KindValidation,
		service.KindConflict,
		service.KindQuota,
		service.KindUnavailable,
	}
	for _, kind := range kinds {
		if got := locale.ErrorMessage(string(kind), locale.English); got == fallback {
			t.Fatalf("kind %q has no message of its own", kind)
		}
	}
}
