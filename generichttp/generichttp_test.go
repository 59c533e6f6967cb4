package generichttp

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/google/go-cmp/cmp"
)

func TestEndpointsSorted(t *testing.T) {
	ok := func(w http.ResponseWriter, r *http.Request) {}
	rt := RouteTable{
		MethodPath{http.MethodPost, "/output"}: ok,
		MethodPath{http.MethodGet, "/idn"}:     ok,
		MethodPath{http.MethodGet, "/output"}:  ok,
	}
	want := []string{"GET /idn", "GET /output", "POST /output"}
	if diff := cmp.Diff(want, rt.Endpoints()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestBindAndMerge(t *testing.T) {
	var level float64
	rt := RouteTable{MethodPath{http.MethodPost, "/level"}: SetFloat(func(f float64) error { level = f; return nil })}
	rt.Merge(RouteTable{MethodPath{http.MethodGet, "/level"}: GetFloat(func() (float64, error) { return level, nil })})
	r := chi.NewRouter()
	rt.Bind(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/level", strings.NewReader(`{"f64": 0.002}`)))
	if w.Code != http.StatusOK || level != 0.002 {
		t.Fatalf("expected level 0.002, got %d %g", w.Code, level)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/level", nil))
	if got := strings.TrimSpace(w.Body.String()); got != `{"f64":0.002}` {
		t.Errorf("expected the level back, got %s", got)
	}
}

func TestSetBadBody(t *testing.T) {
	w := httptest.NewRecorder()
	SetBool(func(bool) error { return nil })(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("nope")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGetError(t *testing.T) {
	w := httptest.NewRecorder()
	GetString(func() (string, error) { return "", errors.New("timeout") })(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestListEndpoints(t *testing.T) {
	rt := RouteTable{}
	rt[MethodPath{http.MethodGet, "/endpoints"}] = ListEndpoints(rt)
	w := httptest.NewRecorder()
	ListEndpoints(rt)(w, httptest.NewRequest(http.MethodGet, "/endpoints", nil))
	if got := strings.TrimSpace(w.Body.String()); got != `["GET /endpoints"]` {
		t.Errorf("expected the table to list itself, got %s", got)
	}
}
