package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/walletvisor/internal/auth"
	"github.com/loykin/walletvisor/internal/orchestrator"
	"github.com/loykin/walletvisor/internal/reaper"
	"github.com/loykin/walletvisor/internal/rpc"
)

// Router exposes the operator API.
// Endpoints:
//
//	GET    {basePath}/health
//	POST   {basePath}/auth/login                 body: {"username": "...", "password": "..."}
//	POST   {basePath}/cleanup
//	GET    {basePath}/wallets/:username/status
//	GET    {basePath}/wallets/:username/balance
//	POST   {basePath}/wallets/:username/create   body: {"seed": "..."} (optional)
//	POST   {basePath}/wallets/:username/connect
//	POST   {basePath}/wallets/:username/stop
//	DELETE {basePath}/wallets/:username
//
// basePath may be empty or start with '/'; no trailing slash. With an auth
// middleware set, everything except health and login requires credentials.
type Router struct {
	o        *orchestrator.Orchestrator
	reaper   *reaper.Reaper
	auth     *auth.Middleware
	basePath string
	log      *slog.Logger
}

// NewRouter constructs a Router. Cleanup requests go through r when it is
// not nil so they never overlap the background reaper.
func NewRouter(o *orchestrator.Orchestrator, r *reaper.Reaper, basePath string) *Router {
	return &Router{o: o, reaper: r, basePath: sanitizeBase(basePath), log: slog.Default().With("component", "server")}
}

// SetAuth guards the wallet and cleanup routes with m.
func (r *Router) SetAuth(m *auth.Middleware) { r.auth = m }

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	public := g.Group(r.basePath)
	public.GET("/health", r.handleHealth)
	public.POST("/auth/login", r.auth.GinLogin())

	group := g.Group(r.basePath, r.auth.GinAuth())
	group.POST("/cleanup", r.handleCleanup)
	w := group.Group("/wallets/:username")
	w.GET("/status", r.handleStatus)
	w.GET("/balance", r.handleBalance)
	w.POST("/create", r.handleCreate)
	w.POST("/connect", r.handleConnect)
	w.POST("/stop", r.handleStop)
	w.DELETE("", r.handleDelete)
	return g
}

// NewServer starts serving r on addr in the background. A non-nil tlsCfg
// switches the listener to HTTPS.
func NewServer(addr string, r *Router, tlsCfg *tls.Config) *http.Server {
	server := &http.Server{
		Addr:              addr,
		TLSConfig:         tlsCfg,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// delete waits for the settle delay and volume removal
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		var err error
		if tlsCfg != nil {
			// certificates come from TLSConfig.GetCertificate
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("api server stopped", "addr", addr, "err", err)
		}
	}()
	return server
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type CreateRequest struct {
	Seed string `json:"seed"`
}

type CreateResponse struct {
	Container string `json:"container"`
}

type ConnectResponse struct {
	Connected bool      `json:"connected"`
	Port      int       `json:"port"`
	Container string    `json:"container"`
	StartedAt time.Time `json:"started_at"`
}

type BalanceResponse struct {
	Total    string `json:"total"`
	Unlocked string `json:"unlocked"`
}

type HealthResponse struct {
	OK     bool              `json:"ok"`
	Checks map[string]string `json:"checks"`
}

func (r *Router) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	checks := map[string]func(context.Context) error{
		"runtime": r.o.Runtime().Ping,
		"store":   r.o.Store().Ping,
		"cache":   r.o.Cache().Ping,
	}
	resp := HealthResponse{OK: true, Checks: make(map[string]string, len(checks))}
	for name, ping := range checks {
		if err := ping(ctx); err != nil {
			resp.OK = false
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}
	code := http.StatusOK
	if !resp.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(c, code, resp)
}

func (r *Router) handleCleanup(c *gin.Context) {
	var (
		rep orchestrator.Report
		err error
	)
	if r.reaper != nil {
		rep, err = r.reaper.RunOnce(c.Request.Context())
	} else {
		rep, err = r.o.Cleanup(c.Request.Context())
	}
	if err != nil && rep.Scanned == 0 {
		writeError(c, err)
		return
	}
	// per-user failures are part of the report
	writeJSON(c, http.StatusOK, rep)
}

func (r *Router) handleStatus(c *gin.Context) {
	st, err := r.o.Status(c.Request.Context(), c.Param("username"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleBalance(c *gin.Context) {
	w, err := r.o.Wallet(c.Request.Context(), c.Param("username"))
	if err != nil {
		writeError(c, err)
		return
	}
	total, unlocked, err := w.Balances(c.Request.Context(), 0)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, BalanceResponse{
		Total:    rpc.FormatAtomic(total),
		Unlocked: rpc.FormatAtomic(unlocked),
	})
}

func (r *Router) handleCreate(c *gin.Context) {
	var req CreateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeJSON(c, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON: " + err.Error()})
			return
		}
	}
	handle, err := r.o.CreateWallet(c.Request.Context(), c.Param("username"), req.Seed)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, CreateResponse{Container: handle})
}

func (r *Router) handleConnect(c *gin.Context) {
	rec, err := r.o.Connect(c.Request.Context(), c.Param("username"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, ConnectResponse{
		Connected: rec.Connected,
		Port:      rec.Port,
		Container: rec.Container,
		StartedAt: rec.StartedAt,
	})
}

func (r *Router) handleStop(c *gin.Context) {
	if err := r.o.Disconnect(c.Request.Context(), c.Param("username")); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleDelete(c *gin.Context) {
	if err := r.o.DeleteWallet(c.Request.Context(), c.Param("username")); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
