package model

import "github.com/Brownie44l1/plasty-api/internal/estimate"

type ClassifyRequest struct {
	Image *string `json:"image"`
}

type Prediction struct {
	Label              string            `json:"label"`
	Confidence         float64           `json:"confidence"`
	Index              int               `json:"index"`
	MicroplasticsCount int               `json:"microplastics_count"`
	Category           estimate.Category `json:"category"`
}

type ClassifyResponse struct {
	Success       bool         `json:"success"`
	Predictions   []Prediction `json:"predictions"`
	TopPrediction Prediction   `json:"top_prediction"`
}

// TensorSpec describes an input or output slot of a loaded model.
type TensorSpec struct {
	Name  string
	Shape []int64
}

// Size is the number of elements in the tensor.
func (s TensorSpec) Size() int {
	if len(s.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range s.Shape {
		n *= int(d)
	}
	return n
}
