package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/walletvisor/internal/container/containertest"
	"github.com/loykin/walletvisor/internal/naming"
	"github.com/loykin/walletvisor/internal/orchestrator"
	"github.com/loykin/walletvisor/internal/reaper"
	"github.com/loykin/walletvisor/internal/store"
	"github.com/loykin/walletvisor/internal/store/memory"
)

type env struct {
	h  http.Handler
	rt *containertest.Runtime
	st *memory.DB
	o  *orchestrator.Orchestrator
}

func setupRouter(t *testing.T, base string) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rt := containertest.New()
	st := memory.New()
	cfg := orchestrator.DefaultConfig()
	cfg.SettleDelay = 0
	o, err := orchestrator.New(cfg, rt, st)
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	return &env{h: NewRouter(o, nil, base).Handler(), rt: rt, st: st, o: o}
}

func doReq(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{" api ", "/api"},
	}
	for _, c := range cases {
		if got := sanitizeBase(c.in); got != c.want {
			t.Fatalf("sanitizeBase(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestWalletLifecycleOverHTTP(t *testing.T) {
	e := setupRouter(t, "/api")

	rec := doReq(t, e.h, http.MethodPost, "/api/wallets/alice/connect", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("connect before create: expected 404, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doReq(t, e.h, http.MethodPost, "/api/wallets/alice/create", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[CreateResponse](t, rec)
	if created.Container == "" {
		t.Fatal("create returned no container")
	}

	st := decode[orchestrator.Status](t, doReq(t, e.h, http.MethodGet, "/api/wallets/alice/status", nil))
	if !st.Created || !st.Volume || !st.Initializing {
		t.Fatalf("unexpected status after create: %+v", st)
	}
	e.rt.Vanish(created.Container)

	rec = doReq(t, e.h, http.MethodPost, "/api/wallets/alice/connect", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("connect: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	conn := decode[ConnectResponse](t, rec)
	if !conn.Connected || conn.Port == 0 || conn.Container == "" {
		t.Fatalf("unexpected connect response: %+v", conn)
	}
	if rec := doReq(t, e.h, http.MethodPost, "/api/wallets/alice/connect", nil); rec.Code != http.StatusConflict {
		t.Fatalf("second connect: expected 409, got %d", rec.Code)
	}

	if rec := doReq(t, e.h, http.MethodPost, "/api/wallets/alice/stop", nil); rec.Code != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if e.rt.Has(naming.RPCContainerName("alice")) {
		t.Fatal("rpc container still running after stop")
	}

	if rec := doReq(t, e.h, http.MethodDelete, "/api/wallets/alice", nil); rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	r, _, _ := e.st.Load(context.Background(), "alice")
	if r.Created || r.Password != "" {
		t.Fatalf("record not reset: %+v", r)
	}
}

func TestCreateWithSeed(t *testing.T) {
	e := setupRouter(t, "")
	rec := doReq(t, e.h, http.MethodPost, "/wallets/bob/create", CreateRequest{Seed: "abbey about above"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	c := e.rt.Containers[naming.InitContainerName("bob")]
	if c == nil || !bytes.Contains([]byte(c.Spec.Command), []byte("--electrum-seed 'abbey about above'")) {
		t.Fatalf("restore command not used: %+v", c)
	}
}

func TestCreateRejectsBadJSON(t *testing.T) {
	e := setupRouter(t, "")
	req := httptest.NewRequest(http.MethodPost, "/wallets/bob/create", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestInvalidUsername(t *testing.T) {
	e := setupRouter(t, "")
	rec := doReq(t, e.h, http.MethodGet, "/wallets/-bad/status", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDeleteVolumeInUse(t *testing.T) {
	e := setupRouter(t, "")
	if rec := doReq(t, e.h, http.MethodPost, "/wallets/carl/create", nil); rec.Code != http.StatusAccepted {
		t.Fatalf("create: %d", rec.Code)
	}
	e.rt.InUse[naming.VolumeName("carl")] = true
	rec := doReq(t, e.h, http.MethodDelete, "/wallets/carl", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRuntimeDownIs503(t *testing.T) {
	e := setupRouter(t, "")
	e.rt.SetDown(true)
	rec := doReq(t, e.h, http.MethodGet, "/wallets/dana/status", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	health := doReq(t, e.h, http.MethodGet, "/health", nil)
	if health.Code != http.StatusServiceUnavailable {
		t.Fatalf("health: expected 503, got %d", health.Code)
	}
	hr := decode[HealthResponse](t, health)
	if hr.OK || hr.Checks["store"] != "ok" || hr.Checks["runtime"] == "ok" {
		t.Fatalf("unexpected health: %+v", hr)
	}
}

func TestHealthOK(t *testing.T) {
	e := setupRouter(t, "/api")
	rec := doReq(t, e.h, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestBalanceRequiresConnection(t *testing.T) {
	e := setupRouter(t, "")
	if err := e.st.Save(context.Background(), store.Record{Username: "erin", Password: "00112233aabbccdd", Created: true}); err != nil {
		t.Fatal(err)
	}
	rec := doReq(t, e.h, http.MethodGet, "/wallets/erin/balance", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestCleanupEndpoint(t *testing.T) {
	e := setupRouter(t, "")
	ctx := context.Background()
	if err := e.st.Save(ctx, store.Record{Username: "fay", Password: "00112233aabbccdd", Created: true}); err != nil {
		t.Fatal(err)
	}
	r, err := e.o.Connect(ctx, "fay")
	if err != nil {
		t.Fatal(err)
	}
	e.rt.Vanish(r.Container)

	rec := doReq(t, e.h, http.MethodPost, "/cleanup", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rep := decode[orchestrator.Report](t, rec)
	if rep.Scanned != 1 || rep.Cleared != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestCleanupThroughReaper(t *testing.T) {
	gin.SetMode(gin.TestMode)
	o, err := orchestrator.New(orchestrator.DefaultConfig(), containertest.New(), memory.New())
	if err != nil {
		t.Fatal(err)
	}
	rp, err := reaper.New(o, time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	h := NewRouter(o, rp, "").Handler()
	if rec := doReq(t, h, http.MethodPost, "/cleanup", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, at, _ := rp.Last(); at.IsZero() {
		t.Fatal("cleanup did not run through the reaper")
	}
}
