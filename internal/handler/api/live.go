package api

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"pairstream/internal/domain/models"
	domrepo "pairstream/internal/domain/repository"
	"pairstream/internal/service/broker"
	"pairstream/internal/service/ratelimit"
	"pairstream/internal/usecase"
	pkgcache "pairstream/pkg/cache"
	xhttp "pairstream/pkg/http"
	xlogger "pairstream/pkg/logger"
	"pairstream/pkg/util"

	"github.com/labstack/echo/v4"
)

// ConnectivityProbe reports whether the upstream feeds are live.
type ConnectivityProbe func() bool

// LiveHandler serves the read side: last values, candle history, health,
// and the WebSocket relay. Everything it returns is a view over state the
// pipeline already produced; it never touches the hot path.
type LiveHandler struct {
	logger    *xlogger.Logger
	cache     pkgcache.Service
	history   *usecase.CandleHistory
	storage   domrepo.Storage
	brk       *broker.Broker
	connected ConnectivityProbe
	limiter   *ratelimit.Limiter
	rlRPS     float64
	rlBurst   float64
	rlHits    atomic.Uint64
}

type LiveHandlerOption func(*LiveHandler)

// WithRateLimit enables per-client token bucket limiting on /api routes.
func WithRateLimit(rps, burst int) LiveHandlerOption {
	return func(h *LiveHandler) {
		if rps > 0 && burst > 0 {
			h.limiter = ratelimit.New()
			h.rlRPS = float64(rps)
			h.rlBurst = float64(burst)
		}
	}
}

func NewLiveHandler(
	logger *xlogger.Logger,
	cache pkgcache.Service,
	history *usecase.CandleHistory,
	storage domrepo.Storage,
	brk *broker.Broker,
	connected ConnectivityProbe,
	opts ...LiveHandlerOption,
) *LiveHandler {
	h := &LiveHandler{
		logger:    logger,
		cache:     cache,
		history:   history,
		storage:   storage,
		brk:       brk,
		connected: connected,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *LiveHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	if h.limiter != nil {
		g.Use(h.rateLimit)
	}
	g.GET("/latest", h.Latest)
	g.GET("/candles", h.Candles)
	e.GET("/ws/live", h.LiveStream)
}

func (h *LiveHandler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.rlHits.Add(1)%4096 == 0 {
			h.limiter.Purge(10 * time.Minute)
		}
		if !h.limiter.Allow(c.RealIP(), h.rlBurst, h.rlRPS) {
			return xhttp.TooManyRequestsResponse(c)
		}
		return next(c)
	}
}

// Health reports feed connectivity and storage reachability. The process
// serves traffic even when degraded; the body says which half is down.
func (h *LiveHandler) Health(c echo.Context) error {
	status := map[string]interface{}{
		"status":         "ok",
		"feed_connected": h.connected == nil || h.connected(),
	}
	if h.storage != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.storage.Health(ctx); err != nil {
			status["storage"] = "unreachable"
		} else {
			status["storage"] = "ok"
		}
	}
	if h.connected != nil && !h.connected() {
		status["status"] = "degraded"
	}
	return xhttp.SuccessResponse(c, status)
}

// Latest returns the most recent cached value for one topic, as published
// by the live mirror.
func (h *LiveHandler) Latest(c echo.Context) error {
	req := &models.LatestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.cache == nil {
		return xhttp.NotFoundResponse(c, "live cache disabled")
	}

	var payload interface{}
	err := h.cache.Get(c.Request().Context(), "latest:"+req.Topic, &payload)
	if err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return xhttp.NotFoundResponse(c, "no data for topic")
		}
		h.logger.Error("latest cache error", xlogger.String("topic", req.Topic), xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"topic": req.Topic,
		"data":  payload,
	})
}

// Candles serves history from storage; either an explicit [from,to] range or
// the latest n buckets.
func (h *LiveHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.history == nil {
		return xhttp.NotFoundResponse(c, "candle history disabled")
	}
	tf := domrepo.NormalizeTimeframe(req.TF)
	ctx := c.Request().Context()

	from, hasFrom := util.ParseTime(req.From)
	to, hasTo := util.ParseTime(req.To)

	var (
		res *usecase.HistoryResult
		err error
	)
	if hasFrom && hasTo {
		res, err = h.history.Range(ctx, usecase.HistoryParams{
			Symbol:    req.Symbol,
			From:      from,
			To:        to,
			Timeframe: tf,
			Limit:     req.N,
		})
	} else {
		res, err = h.history.Latest(ctx, req.Symbol, req.N, tf)
	}
	if err != nil {
		h.logger.Error("candles query error",
			xlogger.String("symbol", req.Symbol),
			xlogger.String("tf", string(tf)),
			xlogger.Error(err),
		)
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.ListResponse(c, res.Candles, int64(res.Count))
}
