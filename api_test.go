package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newTestAPI(t *testing.T, ids ...string) (*gin.Engine, *ShowController) {
	t.Helper()
	lib := testLibrary(ids...)
	ctrl := NewShowController(lib, NewMemoryChannels(2, nil), (&simFactory{length: 60}).build)
	t.Cleanup(ctrl.Shutdown)
	return newRouter(ctrl, lib), ctrl
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAPIStatus(t *testing.T) {
	router, _ := newTestAPI(t, "a")

	w := doRequest(router, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS origin header = %q, want *", got)
	}

	var st ControllerStatus
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Playing || st.ModeName != "off" {
		t.Fatalf("status = %+v, want idle and off", st)
	}
}

func TestAPISongs(t *testing.T) {
	router, _ := newTestAPI(t, "a", "b")

	w := doRequest(router, http.MethodGet, "/api/songs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", w.Code)
	}
	var songs []SongSummary
	if err := json.Unmarshal(w.Body.Bytes(), &songs); err != nil {
		t.Fatalf("decode songs: %v", err)
	}
	if len(songs) != 2 || songs[0].ID != "a" {
		t.Fatalf("songs = %+v", songs)
	}
}

func TestAPIModeEndpoint(t *testing.T) {
	router, ctrl := newTestAPI(t, "a")

	w := doRequest(router, http.MethodPost, "/api/mode", `{"mode": 2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", w.Code)
	}
	if got := ctrl.Mode(); got != ModeMedium {
		t.Fatalf("Mode() = %d after POST, want %d", got, ModeMedium)
	}

	for _, body := range []string{`{"mode": 9}`, `{"mode": -2}`, `{}`, `not json`} {
		if w := doRequest(router, http.MethodPost, "/api/mode", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, w.Code)
		}
	}

	w = doRequest(router, http.MethodPost, "/api/mode/cycle", "")
	if w.Code != http.StatusOK {
		t.Fatalf("cycle status = %d, want 200", w.Code)
	}
	if got := ctrl.Mode(); got != ModeFast {
		t.Fatalf("Mode() = %d after cycle from medium, want %d", got, ModeFast)
	}
}

func TestAPIShowLifecycle(t *testing.T) {
	router, ctrl := newTestAPI(t, "a", "b")

	if w := doRequest(router, http.MethodPost, "/api/show/skip", ""); w.Code != http.StatusConflict {
		t.Fatalf("skip while idle: status = %d, want 409", w.Code)
	}

	w := doRequest(router, http.MethodPost, "/api/show/start", "")
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d, want 200", w.Code)
	}
	waitFor(t, 2*time.Second, "show to start", ctrl.Playing)

	var st ControllerStatus
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode start response: %v", err)
	}
	if st.Song == nil || st.Song.ID != "a" {
		t.Fatalf("start response = %+v, want song a", st)
	}

	if w := doRequest(router, http.MethodPost, "/api/show/skip", ""); w.Code != http.StatusOK {
		t.Fatalf("skip status = %d, want 200", w.Code)
	}

	if w := doRequest(router, http.MethodPost, "/api/show/stop", ""); w.Code != http.StatusOK {
		t.Fatalf("stop status = %d, want 200", w.Code)
	}
	if ctrl.Playing() {
		t.Fatal("still playing after stop endpoint")
	}

	if w := doRequest(router, http.MethodPost, "/api/show/start", `{"song": "nope"}`); w.Code != http.StatusConflict {
		t.Fatalf("unknown song: status = %d, want 409", w.Code)
	}

	w = doRequest(router, http.MethodPost, "/api/show/start", `{"song": "b"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("one-shot status = %d, want 200", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode one-shot response: %v", err)
	}
	if st.Song == nil || st.Song.ID != "b" {
		t.Fatalf("one-shot response = %+v, want song b", st)
	}
	doRequest(router, http.MethodPost, "/api/show/stop", "")
}

func TestAPIOptionsPreflight(t *testing.T) {
	router, _ := newTestAPI(t, "a")

	w := doRequest(router, http.MethodOptions, "/api/status", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
		t.Errorf("preflight methods = %q", got)
	}
}

func TestIntegrationPollerTriggersShow(t *testing.T) {
	lib := testLibrary("a")
	ctrl := NewShowController(lib, NewMemoryChannels(1, nil), (&simFactory{length: 60}).build)
	t.Cleanup(ctrl.Shutdown)

	var doneCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/check", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "1")
	})
	mux.HandleFunc("/done", func(w http.ResponseWriter, r *http.Request) {
		doneCalls.Add(1)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := newIntegrationPoller(srv.URL+"/check", srv.URL+"/done", ctrl)
	p.interval = 10 * time.Millisecond
	go p.Run()
	t.Cleanup(p.Stop)

	waitFor(t, 5*time.Second, "poller to start the show", ctrl.Playing)
	if doneCalls.Load() == 0 {
		t.Fatal("trigger was never acknowledged on the done endpoint")
	}
}

func TestIntegrationPollerIgnoresQuietEndpoint(t *testing.T) {
	lib := testLibrary("a")
	ctrl := NewShowController(lib, NewMemoryChannels(1, nil), (&simFactory{length: 60}).build)
	t.Cleanup(ctrl.Shutdown)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "0")
	}))
	t.Cleanup(srv.Close)

	p := newIntegrationPoller(srv.URL, "", ctrl)
	p.interval = 5 * time.Millisecond
	go p.Run()
	t.Cleanup(p.Stop)

	time.Sleep(60 * time.Millisecond)
	if ctrl.Playing() {
		t.Fatal("quiet endpoint started a show")
	}
}
