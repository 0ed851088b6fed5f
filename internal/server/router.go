package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/tuc/internal/lifecycle"
	mng "github.com/loykin/tuc/internal/manager"
	"github.com/loykin/tuc/internal/script"
)

// Router provides embeddable HTTP handlers for managing scripts.
// Endpoints:
//   GET    {basePath}/scripts               list registered scripts
//   POST   {basePath}/scripts               body: {"path": "..."}
//   DELETE {basePath}/scripts?path=...
//   POST   {basePath}/scripts/start?path=...
//   POST   {basePath}/scripts/stop?path=...
//   POST   {basePath}/start-all
//   POST   {basePath}/stop-all
//   GET    {basePath}/autostart
//   PUT    {basePath}/autostart             body: {"enabled": true}
//   GET    {basePath}/notices?limit=N
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	mgr        *mng.Manager
	feed       *lifecycle.Feed
	basePath   string
	middleware []gin.HandlerFunc
}

// NewRouter constructs a new Router with configurable basePath.
// feed may be nil, in which case /notices returns an empty list.
func NewRouter(mgr *mng.Manager, feed *lifecycle.Feed, basePath string) *Router {
	return &Router{mgr: mgr, feed: feed, basePath: sanitizeBase(basePath)}
}

// Use adds middleware run before every API handler, e.g. bearer auth.
func (r *Router) Use(mw ...gin.HandlerFunc) *Router {
	r.middleware = append(r.middleware, mw...)
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath, r.middleware...)
	group.GET("/scripts", r.handleList)
	group.POST("/scripts", r.handleAdd)
	group.DELETE("/scripts", r.handleRemove)
	group.POST("/scripts/start", r.handleStart)
	group.POST("/scripts/stop", r.handleStop)
	group.POST("/start-all", r.handleStartAll)
	group.POST("/stop-all", r.handleStopAll)
	group.GET("/autostart", r.handleGetAutostart)
	group.PUT("/autostart", r.handleSetAutostart)
	group.GET("/notices", r.handleNotices)
	return g
}

// NewServer binds addr and serves h in the background, over TLS when
// tlsCfg is non-nil. Bind errors are returned; shut the server down with
// http.Server.Shutdown.
func NewServer(addr string, h http.Handler, tlsCfg *tls.Config) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           h,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// start-all runs one scheduler round trip per script
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	go func() { _ = server.Serve(ln) }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type addReq struct {
	Path string `json:"path"`
}

type autostartReq struct {
	Enabled *bool `json:"enabled"`
}

type autostartResp struct {
	Enabled bool `json:"enabled"`
}

func (r *Router) handleList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.mgr.Scripts())
}

func (r *Router) handleAdd(c *gin.Context) {
	var req addReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	path, err := checkScriptPath(req.Path)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	e, err := r.mgr.Add(c.Request.Context(), path)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, e)
}

func (r *Router) handleRemove(c *gin.Context) {
	path, ok := pathParam(c)
	if !ok {
		return
	}
	if err := r.mgr.Remove(c.Request.Context(), path); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStart(c *gin.Context) {
	r.transition(c, r.mgr.Controller().Start, lifecycle.OutcomeStarted)
}

func (r *Router) handleStop(c *gin.Context) {
	r.transition(c, r.mgr.Controller().Stop, lifecycle.OutcomeStopped)
}

func (r *Router) transition(c *gin.Context, op func(ctx context.Context, path string) error, ok lifecycle.Outcome) {
	path, valid := pathParam(c)
	if !valid {
		return
	}
	err := op(c.Request.Context(), path)
	if errors.Is(err, script.ErrNotFound) {
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
		return
	}
	e, ferr := r.mgr.Controller().Registry().Find(path)
	if ferr != nil {
		e = script.Entry{Path: path}
	}
	res := lifecycle.ResultFor(e, err, ok)
	if err != nil {
		writeJSON(c, statusFor(err), res)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (r *Router) handleStartAll(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.mgr.Controller().StartAll(c.Request.Context()))
}

func (r *Router) handleStopAll(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.mgr.Controller().StopAll(c.Request.Context()))
}

func (r *Router) handleGetAutostart(c *gin.Context) {
	writeJSON(c, http.StatusOK, autostartResp{Enabled: r.mgr.Autostart()})
}

func (r *Router) handleSetAutostart(c *gin.Context) {
	var req autostartReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Enabled == nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "enabled required"})
		return
	}
	if err := r.mgr.SetAutostart(c.Request.Context(), *req.Enabled); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, autostartResp{Enabled: r.mgr.Autostart()})
}

func (r *Router) handleNotices(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	if r.feed == nil {
		writeJSON(c, http.StatusOK, []lifecycle.Notice{})
		return
	}
	writeJSON(c, http.StatusOK, r.feed.Recent(limit))
}

