package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/wechatpad/internal/db"
	"github.com/wechatpad/internal/handler"
	"github.com/wechatpad/internal/router"
	"github.com/wechatpad/internal/service"
)

type e2eSuite struct {
	handler  http.Handler
	public   httpClient
	editor   httpClient
	baseURL  string
	username string
	password string
}

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type localClient struct {
	handler http.Handler
	jar     http.CookieJar
}

func newLocalClient(handler http.Handler, withJar bool) *localClient {
	var jar http.CookieJar
	if withJar {
		if j, err := cookiejar.New(nil); err == nil {
			jar = j
		}
	}
	return &localClient{handler: handler, jar: jar}
}

func (c *localClient) Do(req *http.Request) (*http.Response, error) {
	if c.jar != nil {
		for _, cookie := range c.jar.Cookies(req.URL) {
			req.AddCookie(cookie)
		}
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	resp := w.Result()
	if c.jar != nil {
		c.jar.SetCookies(req.URL, resp.Cookies())
	}
	return resp, nil
}

func TestE2E_AllInterfaces(t *testing.T) {
	suite := newE2ESuite(t)

	t.Run("documents and versions", suite.testDocuments)
	t.Run("images", suite.testImages)
	t.Run("editor sessions", suite.testEditorSessions)
	t.Run("settings and storage", suite.testSettingsAndStorage)
	t.Run("export and import", suite.testExportImport)
	t.Run("accounts", suite.testAccounts)
}

func newE2ESuite(t *testing.T) *e2eSuite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry, err := db.OpenRegistry("", true)
	if err != nil {
		t.Fatalf("failed to open registry: %v", err)
	}
	t.Cleanup(func() { registry.Close() })
	if err := registry.EnsureAccount(context.Background(), "editor", "e2e-secret"); err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}

	provider := db.NewProvider(db.Options{Dir: t.TempDir()}, "")
	t.Cleanup(func() { provider.Close() })

	api := handler.NewAPI(provider, handler.Options{
		Accounts: service.NewAccountService(registry, provider, nil),
	})
	t.Cleanup(api.Close)

	engine := router.SetupRouter(api, router.Options{SessionSecret: "test-session-secret"})
	h := router.WithCORS(engine, []string{"http://example.test"})

	return &e2eSuite{
		handler:  h,
		public:   newLocalClient(h, false),
		editor:   newLocalClient(h, true),
		baseURL:  "http://example.test",
		username: "editor",
		password: "e2e-secret",
	}
}

type documentPayload struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Metadata struct {
		WordCount int `json:"wordCount"`
	} `json:"metadata"`
}

func (s *e2eSuite) createDocument(t *testing.T, title, content string) documentPayload {
	t.Helper()
	resp := s.mustRequestJSON(t, s.public, http.MethodPost, "/api/documents", map[string]interface{}{
		"title":   title,
		"content": content,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create document expected 201, got %d", resp.StatusCode)
	}
	var payload struct {
		Document documentPayload `json:"document"`
	}
	decodeJSON(t, resp, &payload)
	return payload.Document
}

func (s *e2eSuite) documentTotal(t *testing.T, client httpClient) int64 {
	t.Helper()
	resp := s.mustRequest(t, client, http.MethodGet, "/api/documents?perPage=100", nil, nil)
	defer resp.Body.Close()
	var list struct {
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	decodeJSON(t, resp, &list)
	return list.Pagination.Total
}

func (s *e2eSuite) testDocuments(t *testing.T) {
	doc := s.createDocument(t, "端到端文档", "这是一篇用于端到端测试的文章")
	if doc.Metadata.WordCount == 0 {
		t.Fatalf("expected word count to be computed, got %+v", doc)
	}

	resp := s.mustRequest(t, s.public, http.MethodGet, "/api/documents?search=端到端", nil, nil)
	defer resp.Body.Close()
	if body := readBody(t, resp); !strings.Contains(body, doc.ID) || strings.Contains(body, `"content"`) {
		t.Fatalf("unexpected search result %s", body)
	}

	resp = s.mustRequestJSON(t, s.public, http.MethodPost, "/api/documents/save", map[string]interface{}{
		"documentId": doc.ID,
		"title":      "端到端文档",
		"content":    "保存后的内容",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save expected 200, got %d", resp.StatusCode)
	}

	versions := "/api/documents/" + doc.ID + "/versions"
	resp = s.mustRequestJSON(t, s.public, http.MethodPost, versions, map[string]interface{}{"reason": "里程碑"})
	defer resp.Body.Close()
	var snapshot struct {
		Version struct {
			ID string `json:"id"`
		} `json:"version"`
	}
	decodeJSON(t, resp, &snapshot)

	resp = s.mustRequestJSON(t, s.public, http.MethodPost, versions+"/auto", map[string]interface{}{
		"title":   "端到端文档",
		"content": "自动保存的内容",
	})
	defer resp.Body.Close()
	var auto struct {
		Version struct {
			ID string `json:"id"`
		} `json:"version"`
	}
	decodeJSON(t, resp, &auto)

	resp = s.mustRequest(t, s.public, http.MethodGet, versions+"/"+snapshot.Version.ID, nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("version detail expected 200, got %d", resp.StatusCode)
	}

	resp = s.mustRequest(t, s.public, http.MethodPost, versions+"/"+snapshot.Version.ID+"/restore", nil, nil)
	defer resp.Body.Close()
	var restored struct {
		Document documentPayload `json:"document"`
	}
	decodeJSON(t, resp, &restored)
	if restored.Document.Content != "保存后的内容" {
		t.Fatalf("expected restored content, got %q", restored.Document.Content)
	}

	resp = s.mustRequest(t, s.public, http.MethodDelete, versions+"/"+auto.Version.ID, nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete version expected 200, got %d", resp.StatusCode)
	}

	resp = s.mustRequest(t, s.public, http.MethodPost, "/api/documents/"+doc.ID+"/duplicate", nil, nil)
	defer resp.Body.Close()
	var dup struct {
		Document documentPayload `json:"document"`
	}
	decodeJSON(t, resp, &dup)
	if dup.Document.ID == doc.ID || !strings.HasSuffix(dup.Document.Title, service.DuplicateTitleSuffix) {
		t.Fatalf("unexpected duplicate %+v", dup.Document)
	}

	resp = s.mustRequest(t, s.public, http.MethodDelete, "/api/documents/"+dup.Document.ID, nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete expected 200, got %d", resp.StatusCode)
	}

	resp = s.mustRequest(t, s.public, http.MethodPost, "/api/documents/metadata/rebuild", nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rebuild expected 200, got %d", resp.StatusCode)
	}
}

func (s *e2eSuite) testImages(t *testing.T) {
	resp := s.uploadTestImage(t)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload expected 201, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var uploaded struct {
		Image struct {
			ID       string `json:"id"`
			Filename string `json:"filename"`
			URL      string `json:"url"`
		} `json:"image"`
	}
	decodeJSON(t, resp, &uploaded)

	resp = s.mustRequest(t, s.public, http.MethodGet, "/api/images/resolve?url="+uploaded.Image.URL, nil, nil)
	defer resp.Body.Close()
	var resolved struct {
		URL string `json:"url"`
	}
	decodeJSON(t, resp, &resolved)
	if resolved.URL != "/api/images/"+uploaded.Image.ID+"/raw" {
		t.Fatalf("unexpected resolved url %q", resolved.URL)
	}

	resp = s.mustRequest(t, s.public, http.MethodGet, resolved.URL, nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("raw image expected png, got %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp = s.mustRequest(t, s.public, http.MethodGet, "/api/images", nil, nil)
	defer resp.Body.Close()
	if body := readBody(t, resp); !strings.Contains(body, uploaded.Image.Filename) || strings.Contains(body, "base64") {
		t.Fatalf("unexpected image list %s", body)
	}

	resp = s.mustRequest(t, s.public, http.MethodDelete, "/api/images/"+uploaded.Image.Filename, nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete image expected 200, got %d", resp.StatusCode)
	}

	resp = s.mustRequest(t, s.public, http.MethodGet, "/api/images/"+uploaded.Image.Filename, nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted image expected 404, got %d", resp.StatusCode)
	}
}

func (s *e2eSuite) testEditorSessions(t *testing.T) {
	resp := s.mustRequestJSON(t, s.public, http.MethodPost, "/api/editor/sessions", map[string]interface{}{})
	defer resp.Body.Close()
	var opened struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	decodeJSON(t, resp, &opened)
	base := "/api/editor/sessions/" + opened.Session.ID

	resp = s.mustRequestJSON(t, s.public, http.MethodPost, base+"/edits", map[string]interface{}{
		"title":   "会话草稿",
		"content": "编辑器里写下的内容",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("edit expected 200, got %d", resp.StatusCode)
	}

	resp = s.mustRequest(t, s.public, http.MethodPost, base+"/save", nil, nil)
	defer resp.Body.Close()
	var saved struct {
		Session struct {
			DocumentID string `json:"documentId"`
		} `json:"session"`
	}
	decodeJSON(t, resp, &saved)
	if saved.Session.DocumentID == "" {
		t.Fatal("expected manual save to create a document")
	}

	resp = s.mustRequest(t, s.public, http.MethodGet, "/api/documents/"+saved.Session.DocumentID+"/versions", nil, nil)
	defer resp.Body.Close()
	if body := readBody(t, resp); !strings.Contains(body, db.ChangeTypeManualSave) {
		t.Fatalf("expected a manual version after save, got %s", body)
	}

	resp = s.mustRequest(t, s.public, http.MethodDelete, base, nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close expected 200, got %d", resp.StatusCode)
	}
}

func (s *e2eSuite) testSettingsAndStorage(t *testing.T) {
	resp := s.mustRequestJSON(t, s.public, http.MethodPut, "/api/settings", map[string]interface{}{
		db.SettingKeyPersistenceMode: "hybrid",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update settings expected 200, got %d", resp.StatusCode)
	}

	resp = s.mustRequest(t, s.public, http.MethodGet, "/api/settings", nil, nil)
	defer resp.Body.Close()
	if body := readBody(t, resp); !strings.Contains(body, `"hybrid"`) {
		t.Fatalf("expected saved setting, got %s", body)
	}

	resp = s.mustRequest(t, s.public, http.MethodGet, "/api/storage/quota", nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("quota expected 200, got %d", resp.StatusCode)
	}

	resp = s.mustRequest(t, s.public, http.MethodGet, "/api/storage/stats", nil, nil)
	defer resp.Body.Close()
	var stats struct {
		Stats struct {
			Documents int64 `json:"documents"`
		} `json:"stats"`
	}
	decodeJSON(t, resp, &stats)
	if stats.Stats.Documents == 0 {
		t.Fatal("expected stats to count documents")
	}
}

func (s *e2eSuite) testExportImport(t *testing.T) {
	before := s.documentTotal(t, s.public)

	resp := s.mustRequest(t, s.public, http.MethodGet, "/api/export?download=1", nil, nil)
	defer resp.Body.Close()
	if !strings.HasPrefix(resp.Header.Get("Content-Disposition"), "attachment;") {
		t.Fatalf("unexpected Content-Disposition %q", resp.Header.Get("Content-Disposition"))
	}
	exported := []byte(readBody(t, resp))

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "backup.json")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	part.Write(exported)
	writer.Close()

	resp = s.mustRequest(t, s.public, http.MethodPost, "/api/import?mergeMode=rename", body, map[string]string{
		"Content-Type": writer.FormDataContentType(),
	})
	defer resp.Body.Close()
	var result struct {
		Success  bool `json:"success"`
		Imported struct {
			Documents int64 `json:"documents"`
		} `json:"imported"`
	}
	decodeJSON(t, resp, &result)
	if !result.Success || result.Imported.Documents != before {
		t.Fatalf("expected %d documents imported, got %+v", before, result)
	}

	if after := s.documentTotal(t, s.public); after != before*2 {
		t.Fatalf("expected renamed copies alongside originals, got %d documents", after)
	}
}

func (s *e2eSuite) testAccounts(t *testing.T) {
	local := s.documentTotal(t, s.public)

	resp := s.mustRequestJSON(t, s.editor, http.MethodPost, "/api/session/login", map[string]interface{}{
		"username": s.username,
		"password": s.password,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login expected 200, got %d", resp.StatusCode)
	}

	if total := s.documentTotal(t, s.editor); total != 0 {
		t.Fatalf("expected an empty database for the account, got %d documents", total)
	}

	resp = s.mustRequest(t, s.editor, http.MethodGet, "/api/session", nil, nil)
	defer resp.Body.Close()
	if body := readBody(t, resp); !strings.Contains(body, `"username":"editor"`) {
		t.Fatalf("unexpected session status %s", body)
	}

	resp = s.mustRequest(t, s.editor, http.MethodPost, "/api/session/logout", nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout expected 200, got %d", resp.StatusCode)
	}
	if total := s.documentTotal(t, s.public); total != local {
		t.Fatalf("expected local documents after logout, got %d want %d", total, local)
	}
}

func (s *e2eSuite) uploadTestImage(t *testing.T) *http.Response {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 200, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, "image", "test.png"))
	partHeader.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(partHeader)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(buf.Bytes()); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	headers := map[string]string{
		"Content-Type": writer.FormDataContentType(),
	}
	return s.mustRequest(t, s.public, http.MethodPost, "/api/images", body, headers)
}

func (s *e2eSuite) mustRequest(t *testing.T, client httpClient, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.baseURL+path, body)
	if err != nil {
		t.Fatalf("failed to build request %s %s: %v", method, path, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

func (s *e2eSuite) mustRequestJSON(t *testing.T, client httpClient, method, path string, payload map[string]interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	headers := map[string]string{"Content-Type": "application/json"}
	return s.mustRequest(t, client, method, path, bytes.NewReader(data), headers)
}

func decodeJSON(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	body := readBody(t, resp)
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		t.Fatalf("failed to decode json: %v\nbody=%s", err, body)
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(data)
}
