package model

import (
	"image"
	"sync"

	"github.com/pkg/errors"

	"github.com/Brownie44l1/plasty-api/internal/estimate"
	"github.com/Brownie44l1/plasty-api/internal/preprocess"
)

const TopN = 5

// Server owns the loaded model and label table for the life of the process.
type Server struct {
	mu        sync.Mutex // guards interp's input/output slots
	interp    Interpreter
	labels    []string
	geometry  preprocess.Geometry
	estimator *estimate.Estimator
}

func NewServer(interp Interpreter, labels []string, estimator *estimate.Estimator) (*Server, error) {
	geometry, err := preprocess.GeometryFromShape(interp.Input().Shape)
	if err != nil {
		return nil, errors.Wrap(err, "model input")
	}

	if n := interp.Output().Size(); n != len(labels) {
		return nil, errors.Errorf("label count %d does not match model output size %d", len(labels), n)
	}

	if estimator == nil {
		estimator = estimate.New()
	}

	return &Server{
		interp:    interp,
		labels:    labels,
		geometry:  geometry,
		estimator: estimator,
	}, nil
}

func (s *Server) NumClasses() int {
	return len(s.labels)
}

func (s *Server) Geometry() preprocess.Geometry {
	return s.geometry
}

// Predict runs one forward pass and returns a copy of the output scores.
func (s *Server) Predict(input []float32) ([]float32, error) {
	if want := s.interp.Input().Size(); len(input) != want {
		return nil, errors.Errorf("expected %d input values, got %d", want, len(input))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := s.interp.Invoke(input)
	if err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

// Classify preprocesses img, runs inference and ranks the top predictions.
func (s *Server) Classify(img image.Image) (*ClassifyResponse, error) {
	input := preprocess.Tensor(img, s.geometry)

	scores, err := s.Predict(input)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(s.labels) {
		return nil, errors.Errorf("model returned %d scores for %d labels", len(scores), len(s.labels))
	}

	top := TopK(scores, TopN)
	if len(top) == 0 {
		return nil, errors.New("model returned no scores")
	}

	predictions := make([]Prediction, 0, len(top))
	for _, idx := range top {
		confidence := float64(scores[idx])
		label := s.labels[idx]
		category, count := s.estimator.Estimate(label, confidence)
		predictions = append(predictions, Prediction{
			Label:              label,
			Confidence:         confidence,
			Index:              idx,
			MicroplasticsCount: count,
			Category:           category,
		})
	}

	return &ClassifyResponse{
		Success:       true,
		Predictions:   predictions,
		TopPrediction: predictions[0],
	}, nil
}

func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interp.Close()
}
