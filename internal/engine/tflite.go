package engine

import (
	"os"

	"github.com/mattn/go-tflite"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Brownie44l1/plasty-api/internal/model"
)

// TFLite wraps a go-tflite interpreter with float32 or uint8 tensors.
type TFLite struct {
	tfModel *tflite.Model
	options *tflite.InterpreterOptions
	interp  *tflite.Interpreter

	input   model.TensorSpec
	output  model.TensorSpec
	inType  tflite.TensorType
	outType tflite.TensorType

	scratch []float32
}

func OpenTFLite(path string, opts Options) (*TFLite, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, "model file")
	}

	m := tflite.NewModelFromFile(path)
	if m == nil {
		return nil, errors.Errorf("cannot load tflite model %s", path)
	}

	options := tflite.NewInterpreterOptions()
	if opts.NumThreads > 0 {
		options.SetNumThread(opts.NumThreads)
	}
	options.SetErrorReporter(func(msg string, _ interface{}) {
		zap.L().Warn("tflite", zap.String("msg", msg))
	}, nil)

	interp := tflite.NewInterpreter(m, options)
	if interp == nil {
		options.Delete()
		m.Delete()
		return nil, errors.New("cannot create tflite interpreter")
	}

	t := &TFLite{tfModel: m, options: options, interp: interp}
	if status := interp.AllocateTensors(); status != tflite.OK {
		t.Close()
		return nil, errors.Errorf("allocate tensors: status %v", status)
	}

	in := interp.GetInputTensor(0)
	out := interp.GetOutputTensor(0)
	if in == nil || out == nil {
		t.Close()
		return nil, errors.New("model has no input or output tensor")
	}

	t.inType, t.outType = in.Type(), out.Type()
	for _, typ := range []tflite.TensorType{t.inType, t.outType} {
		if typ != tflite.Float32 && typ != tflite.UInt8 {
			t.Close()
			return nil, errors.Errorf("unsupported tensor type %v", typ)
		}
	}

	t.input = model.TensorSpec{Name: in.Name(), Shape: tensorShape(in)}
	t.output = model.TensorSpec{Name: out.Name(), Shape: tensorShape(out)}
	t.scratch = make([]float32, t.output.Size())

	zap.L().Info("tflite model loaded",
		zap.String("path", path),
		zap.Int64s("input_shape", t.input.Shape),
		zap.Int64s("output_shape", t.output.Shape),
		zap.Any("input_type", t.inType),
	)
	return t, nil
}

func tensorShape(t *tflite.Tensor) []int64 {
	shape := make([]int64, t.NumDims())
	for i := range shape {
		shape[i] = int64(t.Dim(i))
	}
	return pinBatch(shape)
}

func (t *TFLite) Input() model.TensorSpec  { return t.input }
func (t *TFLite) Output() model.TensorSpec { return t.output }

func (t *TFLite) Invoke(input []float32) ([]float32, error) {
	in := t.interp.GetInputTensor(0)
	switch t.inType {
	case tflite.Float32:
		copy(in.Float32s(), input)
	case tflite.UInt8:
		buf := in.UInt8s()
		for i, v := range input {
			buf[i] = uint8(v*255 + 0.5)
		}
	}

	if status := t.interp.Invoke(); status != tflite.OK {
		return nil, errors.Errorf("invoke: status %v", status)
	}

	out := t.interp.GetOutputTensor(0)
	switch t.outType {
	case tflite.Float32:
		copy(t.scratch, out.Float32s())
	case tflite.UInt8:
		q := out.QuantizationParams()
		for i, v := range out.UInt8s() {
			if q.Scale != 0 {
				t.scratch[i] = float32(q.Scale * float64(int(v)-q.ZeroPoint))
			} else {
				t.scratch[i] = float32(v) / 255
			}
		}
	}
	return t.scratch, nil
}

func (t *TFLite) Close() error {
	if t.interp != nil {
		t.interp.Delete()
		t.interp = nil
	}
	if t.options != nil {
		t.options.Delete()
		t.options = nil
	}
	if t.tfModel != nil {
		t.tfModel.Delete()
		t.tfModel = nil
	}
	return nil
}
