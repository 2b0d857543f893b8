package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/plasty-api/internal/metrics"
)

type RouterOptions struct {
	MaxBodyBytes int64
}

// NewRouter wires the API endpoints and middleware.
func NewRouter(h *Handler, m *metrics.Metrics, log *zap.Logger, opts RouterOptions) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 20 << 20
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(log))
	if m != nil {
		r.Use(m.Middleware())
	}
	r.Use(enableCORS())

	r.GET("/", h.Home)
	r.GET("/health", h.Health)
	r.POST("/classify", limitBody(opts.MaxBodyBytes), h.Classify)
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	return r
}
