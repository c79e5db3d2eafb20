package httpserver

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	cfgpkg "github.com/rzbill/flolog/internal/config"
	"github.com/rzbill/flolog/internal/runtime"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

func newTestServer(t *testing.T) (*Server, *runtime.Runtime) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Disk.Fsync = "never"
	cfg.DefaultPartitions = 2
	reg := prometheus.NewRegistry()
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})
	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logger, Registerer: reg})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return New(rt, logger, reg), rt
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/v1/healthz", "")
	if w.Code != 200 {
		t.Fatalf("status: %d", w.Code)
	}
	w = do(t, s, http.MethodGet, "/v1/info", "")
	if w.Code != 200 || !strings.Contains(w.Body.String(), `"backend":"disk"`) {
		t.Fatalf("info: %d %s", w.Code, w.Body.String())
	}
}

func TestCreateListDelete(t *testing.T) {
	s, _ := newTestServer(t)
	if w := do(t, s, http.MethodPost, "/v1/logs", `{"name":"orders"}`); w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, s, http.MethodPost, "/v1/logs", `{"name":"orders","partitions":7}`); w.Code != http.StatusOK {
		t.Fatalf("create again: %d", w.Code)
	}
	w := do(t, s, http.MethodGet, "/v1/logs/orders", "")
	var info struct {
		Name       string `json:"name"`
		Partitions int    `json:"partitions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil || info.Partitions != 2 {
		t.Fatalf("get: %d %s", w.Code, w.Body.String())
	}
	w = do(t, s, http.MethodGet, "/v1/logs", "")
	if !strings.Contains(w.Body.String(), `"name":"orders"`) {
		t.Fatalf("list: %s", w.Body.String())
	}
	if w := do(t, s, http.MethodPost, "/v1/logs", `{"name":"bad/name"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad name: %d", w.Code)
	}
	if w := do(t, s, http.MethodDelete, "/v1/logs/orders", ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, s, http.MethodGet, "/v1/logs/orders", ""); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", w.Code)
	}
	if w := do(t, s, http.MethodDelete, "/v1/logs/orders", ""); w.Code != http.StatusNotFound {
		t.Fatalf("delete missing: %d", w.Code)
	}
}

func TestAppendAndLag(t *testing.T) {
	s, rt := newTestServer(t)
	do(t, s, http.MethodPost, "/v1/logs", `{"name":"orders","partitions":2}`)
	w := do(t, s, http.MethodPost, "/v1/logs/orders/append", `{"partition":1,"payload":"aGVsbG8="}`)
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"partition":1`) {
		t.Fatalf("append: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, s, http.MethodPost, "/v1/logs/orders/append", `{"key":"k","payload":"aGk="}`); w.Code != http.StatusCreated {
		t.Fatalf("append key: %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/v1/logs/orders/append", `{"partition":5,"payload":"aGk="}`); w.Code != http.StatusBadRequest {
		t.Fatalf("append out of range: %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/v1/logs/missing/append", `{"payload":"aGk="}`); w.Code != http.StatusNotFound {
		t.Fatalf("append unknown: %d", w.Code)
	}

	w = do(t, s, http.MethodGet, "/v1/logs/orders/lag?group=billing", "")
	var lag struct {
		Lower, Upper, Lag int64
	}
	if err := json.Unmarshal(w.Body.Bytes(), &lag); err != nil || lag.Upper != 2 || lag.Lag != 2 {
		t.Fatalf("lag: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, s, http.MethodGet, "/v1/logs/orders/lag", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("lag without group: %d", w.Code)
	}

	// a tailer holding the partitions makes the tail endpoint conflict
	tl, err := rt.Manager().CreateTailerForLog("billing", "orders")
	if err != nil {
		t.Fatalf("tailer: %v", err)
	}
	if w := do(t, s, http.MethodGet, "/v1/logs/orders/tail?group=billing&limit=1", ""); w.Code != http.StatusConflict {
		t.Fatalf("tail conflict: %d", w.Code)
	}
	_ = tl.Close()
}

func TestTailStreamsAndCommits(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/v1/logs", `{"name":"events","partitions":1}`)
	for _, p := range []string{"b25l", "dHdv"} {
		do(t, s, http.MethodPost, "/v1/logs/events/append", `{"payload":"`+p+`"}`)
	}
	w := do(t, s, http.MethodGet, "/v1/logs/events/tail?group=ui&limit=2&commit=true", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("tail: %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	var payloads []string
	sc := bufio.NewScanner(strings.NewReader(w.Body.String()))
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var rec struct {
			Payload []byte `json:"payload"`
		}
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			t.Fatalf("event %q: %v", data, err)
		}
		payloads = append(payloads, string(rec.Payload))
	}
	if strings.Join(payloads, ",") != "one,two" {
		t.Fatalf("payloads %v", payloads)
	}

	w = do(t, s, http.MethodGet, "/v1/logs/events/groups", "")
	if !strings.Contains(w.Body.String(), `"ui"`) {
		t.Fatalf("groups: %s", w.Body.String())
	}
	w = do(t, s, http.MethodGet, "/v1/logs/events/lag?group=ui", "")
	if !strings.Contains(w.Body.String(), `"lag":0`) {
		t.Fatalf("lag after commit: %s", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/v1/logs", `{"name":"m","partitions":1}`)
	do(t, s, http.MethodPost, "/v1/logs/m/append", `{"payload":"eA=="}`)
	w := do(t, s, http.MethodGet, "/metrics", "")
	if w.Code != 200 || !strings.Contains(w.Body.String(), `flolog_appended_records_total{log="m",partition="0"} 1`) {
		t.Fatalf("metrics: %d %s", w.Code, w.Body.String())
	}
}
