package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/routeproxy/internal/api/middleware"
	"github.com/GriffinCanCode/routeproxy/internal/codec"
	"github.com/GriffinCanCode/routeproxy/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/routeproxy/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/routeproxy/internal/rewrite"
	"github.com/GriffinCanCode/routeproxy/internal/route"
)

// ResourceTypeHeader carries the type a payload was rewritten as.
const ResourceTypeHeader = "X-Resource-Type"

// DefaultMaxBodyBytes bounds request payloads when no limit is configured.
const DefaultMaxBodyBytes = 10 << 20

// Options wires the handler dependencies.
type Options struct {
	Engine       *rewrite.Engine
	Codec        *codec.Codec
	Base         string
	Metrics      *monitoring.Metrics
	Tracer       *tracing.Tracer
	MaxBodyBytes int64
}

// Handlers serves the rewrite and route endpoints.
type Handlers struct {
	engine  *rewrite.Engine
	codec   *codec.Codec
	base    string
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	maxBody int64
}

// NewHandlers creates the handler set.
func NewHandlers(opts Options) *Handlers {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handlers{
		engine:  opts.Engine,
		codec:   opts.Codec,
		base:    route.NormalizeBase(opts.Base),
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		maxBody: opts.MaxBodyBytes,
	}
}

// Register mounts the endpoints on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)

	v1 := r.Group("/v1")
	v1.POST("/rewrite/:type", h.Rewrite)
	v1.GET("/route", h.Route)
	v1.GET("/resolve/*route", h.Resolve)
}

// Rewrite rewrites the request body as the type named in the path and
// returns it.
func (h *Handlers) Rewrite(c *gin.Context) {
	log := middleware.Logger(c)

	requested := c.Param("type")
	if requested != "auto" && !rewrite.Rewritable(route.ResourceType(requested)) {
		h.reject(c, http.StatusBadRequest, "unsupported resource type: "+requested)
		return
	}

	page, err := route.NewAddress(c.Query("url"), h.codec, h.base)
	if err != nil || !route.Routable(page) {
		h.reject(c, http.StatusBadRequest, "url must be an absolute http(s) page address")
		return
	}

	data, err := readBody(c.Writer, c.Request, h.maxBody)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			h.reject(c, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, errBadEncoding):
			h.reject(c, http.StatusUnsupportedMediaType, err.Error())
		default:
			h.reject(c, http.StatusBadRequest, err.Error())
		}
		return
	}

	contentType := c.ContentType()
	t := route.ResourceType(requested)
	if requested == "auto" {
		detected, ok := detectType(c.GetHeader("Content-Type"), data)
		if !ok {
			h.reject(c, http.StatusUnsupportedMediaType, "cannot determine resource type")
			return
		}
		t = detected
	}

	text, err := decodeText(data, c.GetHeader("Content-Type"), t)
	if err != nil {
		h.reject(c, http.StatusUnsupportedMediaType, err.Error())
		return
	}

	if name := c.Query("sanitize"); name != "" {
		policy, ok := sanitizers[name]
		if !ok || t != route.HTML {
			h.reject(c, http.StatusBadRequest, "sanitize applies to html with policy ugc or strict")
			return
		}
		text = policy().Sanitize(text)
	}

	span, ctx := h.tracer.StartSpan(c.Request.Context(), "rewrite "+string(t))
	span.SetTag("resource.type", string(t))
	span.SetTag("page", page.String())
	c.Request = c.Request.WithContext(ctx)
	defer func() {
		span.Finish()
		h.tracer.Submit(span)
	}()

	timer := monitoring.NewTimer(h.metrics, t)
	out, err := h.engine.Rewrite(t, text, page)
	if err != nil {
		span.SetError(err)

		var parseErr *rewrite.ParseError
		if errors.As(err, &parseErr) {
			timer.Stop(monitoring.StatusParse, len(text), 0)
			log.Info("payload did not parse", zap.String("type", string(t)), zap.Error(err))
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success": false,
				"type":    string(t),
				"error":   err.Error(),
			})
			return
		}

		timer.Stop(monitoring.StatusRejected, len(text), 0)
		log.Error("rewrite failed", zap.String("type", string(t)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	timer.Stop(monitoring.StatusOK, len(text), len(out))
	span.SetTag("bytes.out", strconv.Itoa(len(out)))

	if contentType == "" || requested == "auto" || c.Query("sanitize") != "" {
		contentType = contentTypeFor(t)
	} else {
		contentType += "; charset=utf-8"
	}
	c.Header(ResourceTypeHeader, string(t))
	c.Header("Vary", "Accept-Encoding")

	body := []byte(out)
	if len(body) >= minGzipResponse && acceptsGzip(c.Request) {
		if zipped, err := gzipBytes(body); err == nil {
			c.Header("Content-Encoding", "gzip")
			body = zipped
		} else {
			log.Warn("response compression failed", zap.Error(err))
		}
	}
	c.Data(http.StatusOK, contentType, body)
}

// Route maps a url, optionally relative to page, to its routed path.
func (h *Handlers) Route(c *gin.Context) {
	t := route.ResourceType(c.DefaultQuery("type", string(route.HTML)))
	if !t.Valid() {
		h.lookupFailed(c, "route", "unknown resource type: "+string(t))
		return
	}
	raw := c.Query("url")
	if raw == "" {
		h.lookupFailed(c, "route", "url is required")
		return
	}

	var (
		target *route.Address
		err    error
	)
	if pageRaw := c.Query("page"); pageRaw != "" {
		page, perr := route.NewAddress(pageRaw, h.codec, h.base)
		if perr != nil {
			h.lookupFailed(c, "route", perr.Error())
			return
		}
		target, err = page.Resolve(raw)
	} else {
		target, err = route.NewAddress(raw, h.codec, h.base)
	}
	if err != nil {
		h.lookupFailed(c, "route", err.Error())
		return
	}

	routed, err := route.ToRoute(t, target)
	if err != nil {
		h.lookupFailed(c, "route", err.Error())
		return
	}

	h.metrics.RecordRouteLookup("route", monitoring.StatusOK)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"route":   routed,
		"type":    string(t),
		"url":     target.String(),
	})
}

// Resolve maps a routed path back to its type and address.
func (h *Handlers) Resolve(c *gin.Context) {
	t, a, err := route.FromRoute(c.Param("route"), h.codec, h.base)
	if err != nil {
		h.lookupFailed(c, "resolve", err.Error())
		return
	}

	h.metrics.RecordRouteLookup("resolve", monitoring.StatusOK)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"type":    string(t),
		"url":     a.String(),
	})
}

// Health reports liveness with running totals.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"codec":  string(h.codec.Kind()),
		"base":   h.base,
		"hook":   h.engine.Hook(),
		"stats":  h.metrics.Snapshot(),
	})
}

func (h *Handlers) lookupFailed(c *gin.Context, op, msg string) {
	h.metrics.RecordRouteLookup(op, monitoring.StatusRejected)
	h.reject(c, http.StatusBadRequest, msg)
}

func (h *Handlers) reject(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   msg,
	})
}
