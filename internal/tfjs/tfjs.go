// Package tfjs writes TensorFlow.js layers-model artifacts.
//
// The exported model is a placeholder: it reproduces the source model's input
// and output shapes with freshly initialized weights, so its predictions are
// not equivalent to the source model.
package tfjs

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/Brownie44l1/plasty-api/internal/preprocess"
)

const (
	ModelFile   = "model.json"
	WeightsFile = "group1-shard1of1.bin"
)

type Layer struct {
	ClassName string         `json:"class_name"`
	Config    map[string]any `json:"config"`
}

type WeightSpec struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
	Dtype string `json:"dtype"`
}

type WeightGroup struct {
	Paths   []string     `json:"paths"`
	Weights []WeightSpec `json:"weights"`
}

type TopologyConfig struct {
	Name   string  `json:"name"`
	Layers []Layer `json:"layers"`
}

type Topology struct {
	ClassName    string         `json:"class_name"`
	Config       TopologyConfig `json:"config"`
	KerasVersion string         `json:"keras_version"`
	Backend      string         `json:"backend"`
}

type Model struct {
	Format              string         `json:"format"`
	GeneratedBy         string         `json:"generatedBy"`
	ConvertedBy         string         `json:"convertedBy"`
	ModelTopology       Topology       `json:"modelTopology"`
	WeightsManifest     []WeightGroup  `json:"weightsManifest"`
	UserDefinedMetadata map[string]any `json:"userDefinedMetadata,omitempty"`
}

// Placeholder is a layers model plus its packed float32 weights.
type Placeholder struct {
	Model   Model
	Weights []float32
}

// NewPlaceholder builds a model accepting inputShape (batch dimension
// included) and producing a softmax over numClasses. Rank-4 inputs are reduced
// with global average pooling over the spatial axes, pooling channels first
// when the shape is [1,3,H,W]. Other ranks are flattened.
func NewPlaceholder(inputShape []int64, numClasses int, seed uint64) (*Placeholder, error) {
	if len(inputShape) < 2 {
		return nil, errors.Errorf("input shape %v has no feature dimensions", inputShape)
	}
	if numClasses <= 0 {
		return nil, errors.Errorf("invalid class count %d", numClasses)
	}

	batchInput := []any{nil}
	for _, d := range inputShape[1:] {
		if d <= 0 {
			return nil, errors.Errorf("input shape %v has a non-positive dimension", inputShape)
		}
		batchInput = append(batchInput, d)
	}

	var (
		layers   []Layer
		features int
	)
	switch len(inputShape) {
	case 4:
		format := "channels_last"
		features = int(inputShape[3])
		if g, err := preprocess.GeometryFromShape(inputShape); err == nil && g.Layout == preprocess.NCHW {
			format = "channels_first"
			features = int(inputShape[1])
		}
		layers = append(layers, Layer{
			ClassName: "GlobalAveragePooling2D",
			Config: map[string]any{
				"name":              "global_average_pooling2d",
				"trainable":         true,
				"batch_input_shape": batchInput,
				"dtype":             "float32",
				"data_format":       format,
			},
		})
	case 2:
		features = int(inputShape[1])
	default:
		features = 1
		for _, d := range inputShape[1:] {
			features *= int(d)
		}
		layers = append(layers, Layer{
			ClassName: "Flatten",
			Config: map[string]any{
				"name":              "flatten",
				"trainable":         true,
				"batch_input_shape": batchInput,
				"dtype":             "float32",
			},
		})
	}

	dense := map[string]any{
		"name":               "dense",
		"trainable":          true,
		"dtype":              "float32",
		"units":              numClasses,
		"activation":         "softmax",
		"use_bias":           true,
		"kernel_initializer": map[string]any{"class_name": "GlorotUniform", "config": map[string]any{"seed": nil}},
		"bias_initializer":   map[string]any{"class_name": "Zeros", "config": map[string]any{}},
	}
	if len(layers) == 0 {
		dense["batch_input_shape"] = batchInput
	}
	layers = append(layers, Layer{ClassName: "Dense", Config: dense})

	limit := math.Sqrt(6 / float64(features+numClasses))
	glorot := distuv.Uniform{Min: -limit, Max: limit, Src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}

	weights := make([]float32, features*numClasses+numClasses)
	for i := 0; i < features*numClasses; i++ {
		weights[i] = float32(glorot.Rand())
	}

	m := Model{
		Format:      "layers-model",
		GeneratedBy: "plasty-convert",
		ConvertedBy: "plasty-convert",
		WeightsManifest: []WeightGroup{{
			Paths: []string{WeightsFile},
			Weights: []WeightSpec{
				{Name: "dense/kernel", Shape: []int{features, numClasses}, Dtype: "float32"},
				{Name: "dense/bias", Shape: []int{numClasses}, Dtype: "float32"},
			},
		}},
		UserDefinedMetadata: map[string]any{
			"placeholder": true,
			"note":        "weights are freshly initialized; outputs do not match the source model",
		},
	}
	m.ModelTopology = Topology{
		ClassName:    "Sequential",
		Config:       TopologyConfig{Name: "sequential", Layers: layers},
		KerasVersion: "tfjs-layers 4.20.0",
		Backend:      "tensor_flow.js",
	}

	return &Placeholder{Model: m, Weights: weights}, nil
}

// Write stores model.json and the weight shard in dir, creating it if needed.
func (p *Placeholder) Write(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}

	manifest, err := json.MarshalIndent(p.Model, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode model.json")
	}
	if err := os.WriteFile(filepath.Join(dir, ModelFile), manifest, 0o644); err != nil {
		return errors.Wrap(err, "write model.json")
	}

	var buf bytes.Buffer
	buf.Grow(4 * len(p.Weights))
	if err := binary.Write(&buf, binary.LittleEndian, p.Weights); err != nil {
		return errors.Wrap(err, "encode weights")
	}
	if err := os.WriteFile(filepath.Join(dir, WeightsFile), buf.Bytes(), 0o644); err != nil {
		return errors.Wrap(err, "write weights")
	}
	return nil
}
