// Package engine loads model artifacts into native inference runtimes.
package engine

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/Brownie44l1/plasty-api/internal/model"
)

type Options struct {
	// NumThreads is the interpreter thread count. Zero leaves the runtime default.
	NumThreads int
	// ONNXLibPath overrides the onnxruntime shared library location.
	ONNXLibPath string
}

// Open loads the model at path, choosing the runtime from the file extension.
func Open(path string, opts Options) (model.Interpreter, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".tflite":
		return OpenTFLite(path, opts)
	case ".onnx":
		return OpenONNX(path, opts)
	default:
		return nil, errors.Errorf("unsupported model format %q", ext)
	}
}

// pinBatch replaces dynamic (negative) dimensions with 1.
func pinBatch(shape []int64) []int64 {
	out := make([]int64, len(shape))
	for i, d := range shape {
		if d < 0 {
			d = 1
		}
		out[i] = d
	}
	return out
}
