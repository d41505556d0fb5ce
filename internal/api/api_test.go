package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/catcoverage/internal/aggregate"
	"github.com/starford/catcoverage/internal/archive"
	"github.com/starford/catcoverage/internal/coverage"
	"github.com/starford/catcoverage/internal/storage"
	"github.com/starford/catcoverage/internal/testutil"
)

// testEnv builds a coverage service over the scenario archive and, when
// load is set, loads the scenario annotation file. An empty authToken
// means auth disabled.
func testEnv(t *testing.T, authToken string, load bool) http.Handler {
	t.Helper()
	return testEnvWithSSE(t, authToken, load, nil)
}

func testEnvWithSSE(t *testing.T, authToken string, load bool, sseHandler http.Handler) http.Handler {
	t.Helper()
	wd := testutil.TestWorkdir(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := coverage.NewService(wd, testutil.ScenarioTree(), 2, aggregate.Options{}, logger)
	if load {
		testutil.WriteFile(t, wd, storage.AnnotationsFile, testutil.ScenarioAnnotations...)
		if _, err := svc.Reload(context.Background()); err != nil {
			t.Fatalf("Reload: %v", err)
		}
	}
	return NewRouter(svc, authToken != "", authToken, sseHandler)
}

func get(t *testing.T, router http.Handler, target string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v", target, err)
		}
	}
	return w
}

func TestCoverage(t *testing.T) {
	router := testEnv(t, "", true)

	var resp struct {
		Checksum string `json:"checksum"`
		Report   struct {
			Entries  int                `json:"entries"`
			Residual aggregate.Residual `json:"residual"`
			Split    aggregate.Split    `json:"split"`
		} `json:"report"`
	}
	w := get(t, router, "/coverage", &resp)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if resp.Checksum == "" {
		t.Error("empty checksum")
	}
	if resp.Report.Entries != 3 {
		t.Errorf("entries = %d", resp.Report.Entries)
	}
	if resp.Report.Residual.Top != (archive.Size{Bytes: 40, Files: 1}) {
		t.Errorf("top = %v", resp.Report.Residual.Top)
	}
	if resp.Report.Split.NotOK.Size != (archive.Size{Bytes: 90, Files: 3}) {
		t.Errorf("not ok = %v", resp.Report.Split.NotOK.Size)
	}
}

func TestCoverage_NotLoaded(t *testing.T) {
	router := testEnv(t, "", false)
	w := get(t, router, "/coverage", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestAnnotationsSorted(t *testing.T) {
	router := testEnv(t, "", true)

	var resp AnnotationsResponse
	if w := get(t, router, "/coverage/annotations?sort=files", &resp); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(resp.Annotations) != 3 {
		t.Fatalf("rows = %d", len(resp.Annotations))
	}
	if resp.Annotations[0].Annotation != "missing" {
		t.Errorf("first by files = %s, want missing", resp.Annotations[0].Annotation)
	}
	if resp.Split.OK.Size != (archive.Size{Bytes: 110, Files: 2}) {
		t.Errorf("ok = %v", resp.Split.OK.Size)
	}

	if w := get(t, router, "/coverage/annotations?sort=colour", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad sort = %d, want 400", w.Code)
	}
}

func TestCollectionsFilterAndLimit(t *testing.T) {
	router := testEnv(t, "", true)

	var resp CollectionsResponse
	get(t, router, "/coverage/collections?annotation=missing", &resp)
	if len(resp.Collections) != 2 {
		t.Fatalf("missing rows = %d, want 2 (collection and TOP)", len(resp.Collections))
	}
	if resp.Collections[0].Collection != "/badc/ukmo" || resp.Collections[1].Collection != "TOP" {
		t.Errorf("rows = %+v", resp.Collections)
	}
	if resp.Total != (archive.Size{Bytes: 200, Files: 5}) {
		t.Errorf("total = %v", resp.Total)
	}

	resp = CollectionsResponse{}
	get(t, router, "/coverage/collections?limit=1", &resp)
	if len(resp.Collections) != 1 || resp.Collections[0].Collection != "/badc/cmip5" {
		t.Errorf("limited rows = %+v", resp.Collections)
	}
}

func TestAnnotationPaths(t *testing.T) {
	router := testEnv(t, "", true)

	var resp PathsResponse
	if w := get(t, router, "/annotations/missing", &resp); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp.Total != 1 || resp.Paths[0] != "/badc/ukmo" {
		t.Errorf("paths = %+v", resp)
	}

	if w := get(t, router, "/annotations/readme_only", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown annotation = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	router := testEnv(t, "secret123", true)

	req := httptest.NewRequest(http.MethodGet, "/coverage", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	router := testEnv(t, "secret123", true)
	if w := get(t, router, "/coverage", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	router := testEnv(t, "secret123", true)

	req := httptest.NewRequest(http.MethodGet, "/coverage", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// blockingSSE writes stream headers and blocks until the client goes away.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, "secret", false, blockingSSE)
	if w := get(t, router, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, "tok", false, blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
}
