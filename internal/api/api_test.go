package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/service"
	"github.com/starford/ansuz/internal/testutil"
)

// testEnv sets up a temp workspace, service, and router. An empty token
// means auth disabled.
func testEnv(t *testing.T, authToken string) (*service.Service, http.Handler) {
	t.Helper()

	svc := service.NewService(testutil.Logger(), t.TempDir())
	if err := svc.OpenWorkspace(context.Background(), t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { svc.CloseWorkspace() }) //nolint:errcheck

	deadline := time.Now().Add(5 * time.Second)
	for svc.Indexing() {
		if time.Now().After(deadline) {
			t.Fatal("bulk index did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}

	router := NewRouter(svc, authToken != "", authToken, nil)
	return svc, router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetNote(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/notes", map[string]string{
		"path":    "hello.md",
		"content": "---\ntitle: Hello\ntags: [greeting]\n---\nWorld\n",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/notes/hello.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var note service.NoteDetail
	if err := json.Unmarshal(w.Body.Bytes(), &note); err != nil {
		t.Fatal(err)
	}
	if note.Title != "Hello" || len(note.Tags) != 1 || note.Tags[0] != "greeting" {
		t.Errorf("note = %+v", note)
	}
}

func TestCreateNote_Duplicate(t *testing.T) {
	_, router := testEnv(t, "")
	body := map[string]string{"path": "a.md", "content": "x"}
	if w := doJSON(t, router, http.MethodPost, "/notes", body); w.Code != http.StatusCreated {
		t.Fatalf("first create = %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodPost, "/notes", body); w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d", w.Code)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	if w := doJSON(t, router, http.MethodGet, "/notes/nope.md", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestUpdateNote_ChecksumConflict(t *testing.T) {
	_, router := testEnv(t, "")
	if w := doJSON(t, router, http.MethodPost, "/notes", map[string]string{"path": "a.md", "content": "v1"}); w.Code != http.StatusCreated {
		t.Fatal(w.Code)
	}

	raw, _ := json.Marshal(map[string]string{"content": "v2"})
	req := httptest.NewRequest(http.MethodPut, "/notes/a.md", bytes.NewReader(raw))
	req.Header.Set("If-Match", `"bogus"`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d: %s", w.Code, w.Body.String())
	}
}

func TestDeleteNote(t *testing.T) {
	_, router := testEnv(t, "")
	if w := doJSON(t, router, http.MethodPost, "/notes", map[string]string{"path": "a.md", "content": "x"}); w.Code != http.StatusCreated {
		t.Fatal(w.Code)
	}
	if w := doJSON(t, router, http.MethodDelete, "/notes/a.md", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodGet, "/notes/a.md", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", w.Code)
	}
}

func TestBacklinksAndGraphEndpoints(t *testing.T) {
	_, router := testEnv(t, "")
	doJSON(t, router, http.MethodPost, "/notes", map[string]string{"path": "a.md", "content": "---\ntitle: A\n---\nx"})
	doJSON(t, router, http.MethodPost, "/notes", map[string]string{"path": "b.md", "content": "see [[A]]"})

	w := doJSON(t, router, http.MethodGet, "/backlinks/a.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("backlinks = %d", w.Code)
	}
	var blResp struct {
		Backlinks []map[string]any `json:"backlinks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &blResp); err != nil {
		t.Fatal(err)
	}
	if len(blResp.Backlinks) != 1 {
		t.Errorf("backlinks = %+v", blResp.Backlinks)
	}

	w = doJSON(t, router, http.MethodGet, "/graph", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("graph = %d", w.Code)
	}
	var snap struct {
		Nodes []string `json:"nodes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Nodes) != 2 {
		t.Errorf("nodes = %v", snap.Nodes)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	doJSON(t, router, http.MethodPost, "/notes", map[string]string{"path": "a.md", "content": "---\ntags: [go]\n---\nx"})
	doJSON(t, router, http.MethodPost, "/notes", map[string]string{"path": "b.md", "content": "y"})

	w := doJSON(t, router, http.MethodGet, "/search?tag=go", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	var resp struct {
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Errorf("results = %+v", resp.Results)
	}

	if w := doJSON(t, router, http.MethodGet, "/search?from=not-a-date", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad date = %d", w.Code)
	}
}

func TestTagsEndpoints(t *testing.T) {
	_, router := testEnv(t, "")
	doJSON(t, router, http.MethodPost, "/notes", map[string]string{"path": "a.md", "content": "#go and #notes"})

	w := doJSON(t, router, http.MethodGet, "/tags", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tags = %d", w.Code)
	}
	var resp struct {
		Tags []map[string]any `json:"tags"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Tags) != 2 {
		t.Errorf("tags = %+v", resp.Tags)
	}

	if w := doJSON(t, router, http.MethodGet, "/tags/go", nil); w.Code != http.StatusOK {
		t.Errorf("tag info = %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodGet, "/tags/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing tag = %d", w.Code)
	}
}

func TestTasksEndpoints(t *testing.T) {
	_, router := testEnv(t, "")
	doJSON(t, router, http.MethodPost, "/notes", map[string]string{"path": "t.md", "content": "- [ ] one\n- [x] two"})

	w := doJSON(t, router, http.MethodGet, "/tasks?completed=false", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tasks = %d", w.Code)
	}
	var info struct {
		TotalCount int `json:"total_count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.TotalCount != 1 {
		t.Errorf("info = %+v", info)
	}

	w = doJSON(t, router, http.MethodPost, "/tasks/toggle", map[string]any{"path": "t.md", "line": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("toggle = %d: %s", w.Code, w.Body.String())
	}

	if w := doJSON(t, router, http.MethodPost, "/tasks/toggle", map[string]any{"path": "t.md", "line": 99}); w.Code != http.StatusNotFound {
		t.Errorf("toggle out of range = %d", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	w := doJSON(t, router, http.MethodGet, "/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Workspace string `json:"workspace"`
		Indexing  bool   `json:"indexing"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Workspace == "" {
		t.Error("workspace empty")
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, router := testEnv(t, "secret")

	if w := doJSON(t, router, http.MethodGet, "/notes", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d", w.Code)
	}
}
