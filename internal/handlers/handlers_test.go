package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/plasty-api/internal/estimate"
	"github.com/Brownie44l1/plasty-api/internal/metrics"
	"github.com/Brownie44l1/plasty-api/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeInterpreter struct {
	scores []float32
}

func (f *fakeInterpreter) Input() model.TensorSpec {
	return model.TensorSpec{Name: "input", Shape: []int64{1, 16, 16, 3}}
}

func (f *fakeInterpreter) Output() model.TensorSpec {
	return model.TensorSpec{Name: "output", Shape: []int64{1, int64(len(f.scores))}}
}

func (f *fakeInterpreter) Invoke([]float32) ([]float32, error) { return f.scores, nil }
func (f *fakeInterpreter) Close() error                        { return nil }

type failingClassifier struct{}

func (failingClassifier) Classify(image.Image) (*model.ClassifyResponse, error) {
	return nil, errors.New("interpreter exploded")
}
func (failingClassifier) NumClasses() int { return 3 }

var testLabels = []string{
	"apple_pie", "grilled_salmon", "broccoli", "fried_rice", "chicken_wings",
	"steak", "pork_chop", "tiramisu", "banana", "ramen",
}

func newServer(t *testing.T) *model.Server {
	t.Helper()
	scores := []float32{0.02, 0.31, 0.05, 0.20, 0.01, 0.12, 0.09, 0.04, 0.15, 0.01}
	srv, err := model.NewServer(&fakeInterpreter{scores: scores}, testLabels, estimate.New(estimate.WithSeed(3)))
	require.NoError(t, err)
	return srv
}

func newRouter(c Classifier, opts RouterOptions) (*gin.Engine, *metrics.Metrics) {
	m := metrics.New()
	return NewRouter(NewHandler(c, m, nil), m, nil, opts), m
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func imagePayload(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 10), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	body, err := json.Marshal(map[string]string{
		"image": "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
	require.NoError(t, err)
	return string(body)
}

func TestHealthBeforeLoad(t *testing.T) {
	r, _ := newRouter(nil, RouterOptions{})
	w := do(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, false, body["model_loaded"])
	assert.Equal(t, float64(0), body["num_classes"])
}

func TestHealthAfterLoad(t *testing.T) {
	r, _ := newRouter(newServer(t), RouterOptions{})
	w := do(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["model_loaded"])
	assert.Equal(t, float64(len(testLabels)), body["num_classes"])
}

func TestHome(t *testing.T) {
	r, _ := newRouter(newServer(t), RouterOptions{})
	w := do(r, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "PlastyAI Food Classification API", body["message"])
	assert.Equal(t, map[string]any{"health": "/health", "classify": "/classify (POST)"}, body["endpoints"])
	assert.Equal(t, map[string]any{"loaded": true, "classes": float64(10)}, body["model_status"])
}

func TestClassifyMissingImage(t *testing.T) {
	r, _ := newRouter(newServer(t), RouterOptions{})
	for _, body := range []string{"{}", `{"image": null}`, ""} {
		w := do(r, http.MethodPost, "/classify", body)
		require.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "No image data provided", decode(t, w)["error"])
	}
}

func TestClassifyInvalidJSON(t *testing.T) {
	r, _ := newRouter(newServer(t), RouterOptions{})
	w := do(r, http.MethodPost, "/classify", "{not json")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid JSON", decode(t, w)["error"])
}

func TestClassify(t *testing.T) {
	r, _ := newRouter(newServer(t), RouterOptions{})
	w := do(r, http.MethodPost, "/classify", imagePayload(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp model.ClassifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Predictions, 5)
	assert.Equal(t, resp.Predictions[0], resp.TopPrediction)
	for i := 1; i < len(resp.Predictions); i++ {
		assert.GreaterOrEqual(t, resp.Predictions[i-1].Confidence, resp.Predictions[i].Confidence)
	}
	assert.Equal(t, "grilled_salmon", resp.TopPrediction.Label)
	assert.Equal(t, 1, resp.TopPrediction.Index)
	assert.Equal(t, estimate.Seafood, resp.TopPrediction.Category)

	raw := decode(t, w)
	top := raw["top_prediction"].(map[string]any)
	for _, k := range []string{"label", "confidence", "index", "microplastics_count"} {
		assert.Contains(t, top, k)
	}
}

func TestClassifyBadPayload(t *testing.T) {
	r, _ := newRouter(newServer(t), RouterOptions{})
	for _, body := range []string{
		`{"image": "data:image/png;base64,@@@@"}`,
		`{"image": "data:image/png;base64,` + base64.StdEncoding.EncodeToString([]byte("plain text")) + `"}`,
		`{"image": ""}`,
	} {
		w := do(r, http.MethodPost, "/classify", body)
		require.Equal(t, http.StatusInternalServerError, w.Code, body)
		out := decode(t, w)
		assert.Equal(t, "Classification failed", out["error"])
		assert.NotEmpty(t, out["details"])
	}
}

func TestClassifyInferenceFailure(t *testing.T) {
	r, _ := newRouter(failingClassifier{}, RouterOptions{})
	w := do(r, http.MethodPost, "/classify", imagePayload(t))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decode(t, w)["details"], "interpreter exploded")

	// still serving afterwards
	w = do(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestClassifyWithoutModel(t *testing.T) {
	r, _ := newRouter(nil, RouterOptions{})
	w := do(r, http.MethodPost, "/classify", imagePayload(t))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHealthNilServer(t *testing.T) {
	var srv *model.Server
	r, _ := newRouter(srv, RouterOptions{})

	w := do(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["model_loaded"])
	assert.Equal(t, float64(0), body["num_classes"])

	w = do(r, http.MethodPost, "/classify", imagePayload(t))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "model not loaded", decode(t, w)["details"])
}

func TestClassifyOversizedImage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
	data := buf.Bytes()
	binary.BigEndian.PutUint32(data[16:20], 60000)
	binary.BigEndian.PutUint32(data[20:24], 60000)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))

	body, err := json.Marshal(map[string]string{
		"image": "data:image/png;base64," + base64.StdEncoding.EncodeToString(data),
	})
	require.NoError(t, err)

	r, _ := newRouter(newServer(t), RouterOptions{})
	w := do(r, http.MethodPost, "/classify", string(body))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decode(t, w)["details"], "image dimensions exceed limit")

	m := metrics.New()
	small := NewRouter(NewHandler(newServer(t), m, nil, WithMaxPixels(100)), m, nil, RouterOptions{})
	w = do(small, http.MethodPost, "/classify", imagePayload(t))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decode(t, w)["details"], "image dimensions exceed limit")
}

func TestClassifyBodyTooLarge(t *testing.T) {
	r, _ := newRouter(newServer(t), RouterOptions{MaxBodyBytes: 64})
	w := do(r, http.MethodPost, "/classify", imagePayload(t))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newRouter(newServer(t), RouterOptions{})
	w := do(r, http.MethodOptions, "/classify", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID(t *testing.T) {
	r, _ := newRouter(newServer(t), RouterOptions{})

	w := do(r, http.MethodGet, "/health", "")
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}

func TestMetrics(t *testing.T) {
	r, _ := newRouter(newServer(t), RouterOptions{})
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/classify", imagePayload(t)).Code)

	w := do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `top_predictions_total{category="seafood"} 1`)
	assert.Contains(t, w.Body.String(), `http_requests_total{method="POST",path="/classify",status="200"} 1`)
}
