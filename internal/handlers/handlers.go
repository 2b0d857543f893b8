package handlers

import (
	"image"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Brownie44l1/plasty-api/internal/metrics"
	"github.com/Brownie44l1/plasty-api/internal/model"
	"github.com/Brownie44l1/plasty-api/internal/preprocess"
)

// Classifier is the loaded model as seen by the HTTP layer.
type Classifier interface {
	Classify(img image.Image) (*model.ClassifyResponse, error)
	NumClasses() int
}

type Handler struct {
	classifier Classifier
	metrics    *metrics.Metrics
	log        *zap.Logger
	maxPixels  int
}

type HandlerOption func(*Handler)

// WithMaxPixels bounds the decoded area of uploaded images.
func WithMaxPixels(n int) HandlerOption {
	return func(h *Handler) { h.maxPixels = n }
}

// NewHandler returns a handler serving classifier. A nil classifier, or a
// nil *model.Server, reports the model as not loaded.
func NewHandler(classifier Classifier, m *metrics.Metrics, log *zap.Logger, opts ...HandlerOption) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if srv, ok := classifier.(*model.Server); ok && srv == nil {
		classifier = nil
	}
	h := &Handler{
		classifier: classifier,
		metrics:    m,
		log:        log,
		maxPixels:  preprocess.DefaultMaxPixels,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) loaded() bool {
	return h.classifier != nil
}

func (h *Handler) numClasses() int {
	if h.classifier == nil {
		return 0
	}
	return h.classifier.NumClasses()
}

func (h *Handler) Home(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "PlastyAI Food Classification API",
		"endpoints": gin.H{
			"health":   "/health",
			"classify": "/classify (POST)",
		},
		"model_status": gin.H{
			"loaded":  h.loaded(),
			"classes": h.numClasses(),
		},
	})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"model_loaded": h.loaded(),
		"num_classes":  h.numClasses(),
	})
}

func (h *Handler) Classify(c *gin.Context) {
	log := h.log.With(zap.String("request_id", c.GetString(requestIDKey)))

	var req model.ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
		case errors.Is(err, io.EOF):
			c.JSON(http.StatusBadRequest, gin.H{"error": "No image data provided"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON", "details": err.Error()})
		}
		return
	}
	if req.Image == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image data provided"})
		return
	}

	fail := func(err error) {
		log.Error("Error during classification", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Classification failed",
			"details": err.Error(),
		})
	}

	if !h.loaded() {
		fail(errors.New("model not loaded"))
		return
	}

	start := time.Now()
	img, err := preprocess.DecodeDataURI(*req.Image, h.maxPixels)
	if err != nil {
		fail(err)
		return
	}

	result, err := h.classifier.Classify(img)
	if err != nil {
		fail(err)
		return
	}
	elapsed := time.Since(start)

	if h.metrics != nil {
		h.metrics.ObserveClassify(elapsed, string(result.TopPrediction.Category))
	}
	log.Debug("classified",
		zap.String("label", result.TopPrediction.Label),
		zap.Float64("confidence", result.TopPrediction.Confidence),
		zap.Duration("elapsed", elapsed),
	)

	c.JSON(http.StatusOK, result)
}
