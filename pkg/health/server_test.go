package health

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/tinyland-inc/gsbridge/pkg/assets"
)

func TestServer_HealthAndReady(t *testing.T) {
	ready := false
	s := NewServer("127.0.0.1", 0, WithReadyCheck(func() bool { return ready }))
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/health = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/ready before connect = %d, want 503", rec.Code)
	}

	ready = true
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/ready after connect = %d, want 200", rec.Code)
	}
}

func TestServer_Files(t *testing.T) {
	dir := t.TempDir()
	store := assets.NewStore(filepath.Join(dir, "assets"), dir, "http://localhost:5140")
	name, err := store.SaveImage([]byte("image bytes"))
	if err != nil {
		t.Fatal(err)
	}
	h := NewServer("127.0.0.1", 0, WithAssets(store)).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/"+name, nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "image bytes" {
		t.Errorf("GET asset = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/missing.png", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing asset = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/files/"+name, nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST asset = %d, want 405", rec.Code)
	}
}
